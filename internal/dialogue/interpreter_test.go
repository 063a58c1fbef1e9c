package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/voicepay/internal/contacts"
)

func ramAndJohn(t *testing.T) contacts.Directory {
	t.Helper()
	dir, err := contacts.New([]contacts.Contact{
		{ID: 1, Name: "Ram", UPIID: "ram@paytm"},
		{ID: 2, Name: "John", UPIID: "john@phonepe"},
	})
	require.NoError(t, err)
	return dir
}

func TestInterpretCancelInEveryState(t *testing.T) {
	dir := ramAndJohn(t)
	utterances := []string{"cancel", "Please STOP", "abort this", "go back", "take me home", "cancel 500 rupees to ram"}
	for _, s := range States() {
		for _, u := range utterances {
			assert.Equal(t, Cancel, Interpret(s, u, dir, 0).Kind, "state=%s utterance=%q", s, u)
		}
	}
}

func TestInterpretHistoryInEveryState(t *testing.T) {
	dir := ramAndJohn(t)
	utterances := []string{"show history", "view transactions", "Display transaction history", "please show transactions now"}
	for _, s := range States() {
		for _, u := range utterances {
			cmd := Interpret(s, u, dir, 4)
			assert.Equal(t, ShowHistory, cmd.Kind, "state=%s utterance=%q", s, u)
			assert.Equal(t, 4, cmd.HistoryCount)
		}
	}
}

func TestInterpretHistoryTakesPrecedenceOverCancel(t *testing.T) {
	cmd := Interpret(Confirm, "stop and show history", ramAndJohn(t), 0)
	assert.Equal(t, ShowHistory, cmd.Kind)
}

func TestInterpretHome(t *testing.T) {
	dir := ramAndJohn(t)
	cases := map[string]Kind{
		"initiate payment":        InitiatePayment,
		"I want to make payment":  InitiatePayment,
		"start pay":               InitiatePayment,
		"begin payments":          InitiatePayment,
		"payment":                 Unrecognized,
		"restart payment":         Unrecognized,
		"make paycheck":           Unrecognized,
		"approve":                 Unrecognized,
		"pay ram now":             Unrecognized,
	}
	for u, want := range cases {
		assert.Equal(t, want, Interpret(Home, u, dir, 0).Kind, "utterance=%q", u)
	}
}

func TestInterpretSelectRecipient(t *testing.T) {
	dir := ramAndJohn(t)

	cmd := Interpret(SelectRecipient, "pay ram now", dir, 0)
	require.Equal(t, SelectContact, cmd.Kind)
	assert.Equal(t, "Ram", cmd.Contact.Name)
	assert.Equal(t, "ram@paytm", cmd.Contact.UPIID)

	assert.Equal(t, Unrecognized, Interpret(SelectRecipient, "nobody", dir, 0).Kind)
	assert.Equal(t, Unrecognized, Interpret(SelectRecipient, "ramp up", dir, 0).Kind)
	assert.Equal(t, Unrecognized, Interpret(SelectRecipient, "johnny", dir, 0).Kind)
	assert.Equal(t, "John", Interpret(SelectRecipient, "JOHN please", dir, 0).Contact.Name)
}

func TestInterpretSelectRecipientDirectoryOrderWins(t *testing.T) {
	dir, err := contacts.New([]contacts.Contact{
		{ID: 1, Name: "John", UPIID: "john@phonepe"},
		{ID: 2, Name: "Ram", UPIID: "ram@paytm"},
	})
	require.NoError(t, err)
	cmd := Interpret(SelectRecipient, "ram or john", dir, 0)
	assert.Equal(t, "John", cmd.Contact.Name)
}

func TestInterpretSelectRecipientPunctuatedNames(t *testing.T) {
	dir, err := contacts.New([]contacts.Contact{
		{ID: 1, Name: "A.J.", UPIID: "aj@okaxis"},
		{ID: 2, Name: "Zoë", UPIID: "zoe@paytm"},
	})
	require.NoError(t, err)

	assert.Equal(t, "A.J.", Interpret(SelectRecipient, "pay a.j. now", dir, 0).Contact.Name)
	assert.Equal(t, "A.J.", Interpret(SelectRecipient, "a.j.", dir, 0).Contact.Name)
	assert.Equal(t, Unrecognized, Interpret(SelectRecipient, "pay a.j.x", dir, 0).Kind)
	assert.Equal(t, "Zoë", Interpret(SelectRecipient, "send it to zoë", dir, 0).Contact.Name)
	assert.Equal(t, Unrecognized, Interpret(SelectRecipient, "zoëy", dir, 0).Kind)
}

func TestInterpretContactNamesOnlyInSelectRecipient(t *testing.T) {
	dir := ramAndJohn(t)
	for _, s := range []State{Home, EnterAmount, Confirm, History} {
		assert.NotEqual(t, SelectContact, Interpret(s, "ram", dir, 0).Kind, "state=%s", s)
	}
}

func TestInterpretEnterAmount(t *testing.T) {
	dir := ramAndJohn(t)
	cases := []struct {
		utterance string
		kind      Kind
		amount    string
	}{
		{"one thousand", Unrecognized, ""},
		{"1000 rupees", SetAmount, "1000"},
		{"500", SetAmount, "500"},
		{"pay 250rs", SetAmount, "250"},
		{"1234567 rupee", SetAmount, "1234567"},
		{"12345678 rupees", Unrecognized, ""},
		{"send 20 then 30", SetAmount, "20"},
	}
	for _, tc := range cases {
		cmd := Interpret(EnterAmount, tc.utterance, dir, 0)
		assert.Equal(t, tc.kind, cmd.Kind, "utterance=%q", tc.utterance)
		assert.Equal(t, tc.amount, cmd.Amount, "utterance=%q", tc.utterance)
	}
}

func TestInterpretConfirm(t *testing.T) {
	dir := ramAndJohn(t)
	for _, u := range []string{"approve", "yes", "Confirm it", "proceed please"} {
		assert.Equal(t, Approve, Interpret(Confirm, u, dir, 0).Kind, "utterance=%q", u)
	}
	assert.Equal(t, Unrecognized, Interpret(Confirm, "yesterday", dir, 0).Kind)
	assert.Equal(t, Unrecognized, Interpret(EnterAmount, "approve", dir, 0).Kind)
}

func TestInterpretEmpty(t *testing.T) {
	assert.Equal(t, Unrecognized, Interpret(Home, "   ", ramAndJohn(t), 0).Kind)
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount("1"))
	assert.True(t, ValidAmount("5000"))
	assert.False(t, ValidAmount("12345678"))
	assert.False(t, ValidAmount("10.5"))
	assert.False(t, ValidAmount(""))
}
