package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/types"
)

func TestParseToken(t *testing.T) {
	cases := []struct {
		token string
		want  Action
	}{
		{"manual_challenge|1789", Action{PostID: "1789", Command: Manual{Tone: types.ToneChallenge}}},
		{"auto_question|1789", Action{PostID: "1789", Command: Auto{Tone: types.ToneQuestion}}},
		{"edit|42", Action{PostID: "42", Command: Edit{}}},
		{"skip|42", Action{PostID: "42", Command: Skip{}}},
		{"watch|42", Action{PostID: "42", Command: Watch{}}},
		{"scount|5", Action{Command: SearchCount{N: 5}}},
	}
	for _, tc := range cases {
		got, err := ParseToken(tc.token)
		require.NoError(t, err, tc.token)
		assert.Equal(t, tc.want, got, tc.token)
		assert.Equal(t, tc.token, Token(got), "round trip")
	}
}

func TestParseTokenRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"skip",
		"skip|",
		"manual_custom|1",
		"manual_banter|1",
		"post_challenge|1",
		"retweet|1",
		"scount|0",
		"scount|6",
		"scount|two",
		"skip|1|2",
	}
	for _, token := range bad {
		_, err := ParseToken(token)
		assert.ErrorIs(t, err, ErrBadToken, "%q", token)
	}
}

func TestCardKeyboardTokensParse(t *testing.T) {
	post := types.Post{ID: "77", AuthorHandle: "averyveryverylonghandle"}
	kb := CardKeyboard(post)
	require.Len(t, kb, 3)
	assert.Len(t, kb[0], 4)
	assert.Len(t, kb[1], 4)
	assert.Len(t, kb[2], 3)
	assert.Equal(t, "➕ @averyveryver", kb[2][2].Label)

	for _, row := range kb {
		for _, b := range row {
			a, err := ParseToken(b.Token)
			require.NoError(t, err, b.Token)
			assert.Equal(t, "77", a.PostID)
		}
	}

	first, _ := ParseToken(kb[1][0].Token)
	assert.Equal(t, Auto{Tone: types.ToneChallenge}, first.Command)
}

func TestSearchCountKeyboard(t *testing.T) {
	kb := SearchCountKeyboard()
	require.Len(t, kb, 1)
	require.Len(t, kb[0], MaxSearchCount)
	for i, b := range kb[0] {
		a, err := ParseToken(b.Token)
		require.NoError(t, err)
		assert.Equal(t, SearchCount{N: i + 1}, a.Command)
	}
}

func TestPostOnlyKeyboard(t *testing.T) {
	kb := PostOnlyKeyboard(types.Post{ID: "5"})
	require.Len(t, kb, 1)
	assert.Equal(t, "skip|5", kb[0][0].Token)
	assert.Equal(t, "➕ @?", kb[0][1].Label)
}
