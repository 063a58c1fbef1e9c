package dialogue

import (
	"regexp"
	"strings"

	"github.com/loqalabs/voicepay/internal/contacts"
)

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
}

// Global rules are tried in order before any state rule.
var globalRules = []rule{
	{ShowHistory, regexp.MustCompile(`\b(show|view|display)\s+(transaction\s+)?(history|transactions)\b`)},
	{Cancel, regexp.MustCompile(`\b(cancel|stop|abort|go back|home)\b`)},
}

var stateRules = map[State][]rule{
	Home:    {{InitiatePayment, regexp.MustCompile(`\b(initiate|start|begin|make)\s+(payments?|pay)\b`)}},
	Confirm: {{Approve, regexp.MustCompile(`\b(approve|confirm|yes|proceed)\b`)}},
}

var (
	amountPattern      = regexp.MustCompile(`(?:^|\D)(\d{1,7})(?:\s*(?:rupees?|rs))?(?:\D|$)`)
	exactAmountPattern = regexp.MustCompile(`^\d{1,7}$`)
)

type contactRule struct {
	contact contacts.Contact
	pattern *regexp.Regexp
}

// Interpreter maps utterances to commands. It holds no mutable state, so one
// instance can be shared.
type Interpreter struct {
	contacts []contactRule
}

// nameEdge delimits a contact name. Unlike \b it also works for names that
// start or end with punctuation, such as "A.J.".
const nameEdge = `[^\p{L}\p{N}_]`

// NewInterpreter precompiles a word-boundary pattern for each contact name.
func NewInterpreter(dir contacts.Directory) *Interpreter {
	all := dir.All()
	rules := make([]contactRule, 0, len(all))
	for _, c := range all {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		rules = append(rules, contactRule{
			contact: c,
			pattern: regexp.MustCompile(`(?:^|` + nameEdge + `)` + regexp.QuoteMeta(name) + `(?:` + nameEdge + `|$)`),
		})
	}
	return &Interpreter{contacts: rules}
}

// Interpret is the one-shot form of Interpreter.Interpret.
func Interpret(state State, utterance string, dir contacts.Directory, historyCount int) Command {
	return NewInterpreter(dir).Interpret(state, utterance, historyCount)
}

// Interpret resolves utterance against the global rules, then the rules of state.
func (in *Interpreter) Interpret(state State, utterance string, historyCount int) Command {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return Command{Kind: Unrecognized}
	}

	for _, r := range globalRules {
		if r.pattern.MatchString(text) {
			cmd := Command{Kind: r.kind}
			if r.kind == ShowHistory {
				cmd.HistoryCount = historyCount
			}
			return cmd
		}
	}

	switch state {
	case SelectRecipient:
		for _, cr := range in.contacts {
			if cr.pattern.MatchString(text) {
				return Command{Kind: SelectContact, Contact: cr.contact}
			}
		}
	case EnterAmount:
		if m := amountPattern.FindStringSubmatch(text); m != nil {
			return Command{Kind: SetAmount, Amount: m[1]}
		}
	default:
		for _, r := range stateRules[state] {
			if r.pattern.MatchString(text) {
				return Command{Kind: r.kind}
			}
		}
	}
	return Command{Kind: Unrecognized}
}

// ValidAmount reports whether s is a bare 1-7 digit amount, as accepted from
// quick-amount buttons.
func ValidAmount(s string) bool {
	return exactAmountPattern.MatchString(s)
}
