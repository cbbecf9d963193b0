package approval

import (
	"strconv"

	"github.com/ibeckermayer/replyscout/internal/types"
)

const maxHandleLabel = 12

// CardKeyboard lays out the buttons under a full post card: manual picks,
// auto-post picks, then edit, skip and watch.
func CardKeyboard(post types.Post) types.Keyboard {
	manual := make([]types.Button, 0, len(types.Tones))
	auto := make([]types.Button, 0, len(types.Tones))
	for _, tone := range types.Tones {
		manual = append(manual, types.Button{
			Label: "📋 " + tone.Letter(),
			Token: Token(Action{PostID: post.ID, Command: Manual{Tone: tone}}),
		})
		auto = append(auto, types.Button{
			Label: "🚀 Auto " + tone.Letter(),
			Token: Token(Action{PostID: post.ID, Command: Auto{Tone: tone}}),
		})
	}

	return types.Keyboard{
		manual,
		auto,
		{
			{Label: "✏️ Edit", Token: Token(Action{PostID: post.ID, Command: Edit{}})},
			skipButton(post),
			watchButton(post),
		},
	}
}

// PostOnlyKeyboard is used for cards without generated replies.
func PostOnlyKeyboard(post types.Post) types.Keyboard {
	return types.Keyboard{{skipButton(post), watchButton(post)}}
}

// SearchCountKeyboard offers 1 to MaxSearchCount results.
func SearchCountKeyboard() types.Keyboard {
	row := make([]types.Button, 0, MaxSearchCount)
	for n := 1; n <= MaxSearchCount; n++ {
		row = append(row, types.Button{
			Label: strconv.Itoa(n),
			Token: Token(Action{Command: SearchCount{N: n}}),
		})
	}
	return types.Keyboard{row}
}

func skipButton(post types.Post) types.Button {
	return types.Button{Label: "🔴 Skip", Token: Token(Action{PostID: post.ID, Command: Skip{}})}
}

func watchButton(post types.Post) types.Button {
	h := []rune(post.AuthorHandle)
	if len(h) == 0 {
		h = []rune("?")
	}
	if len(h) > maxHandleLabel {
		h = h[:maxHandleLabel]
	}
	return types.Button{Label: "➕ @" + string(h), Token: Token(Action{PostID: post.ID, Command: Watch{}})}
}
