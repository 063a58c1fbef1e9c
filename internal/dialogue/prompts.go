package dialogue

import "fmt"

// Spoken prompts and status lines. Echo filtering in the turn coordinator is
// keyed on fragments of these strings, so keep the two in step.
const (
	promptSelectContact  = "Please select a contact by saying their name."
	promptProcessing     = "Processing your payment. Please wait."
	promptCancelled      = "Transaction cancelled. Returning to home."
	promptNotUnderstood  = "Sorry, I did not understand that command."
	promptPaymentFailed  = "Sorry, the payment could not be completed."
	promptListeningOff   = "Voice command stopped"
	statusSelectContact  = "Select Contact"
	statusConfirm        = "Confirm Payment"
	statusProcessing     = "Processing Payment..."
	statusSuccess        = "Payment Successful!"
	statusCancelled      = "Transaction cancelled"
	statusNotRecognized  = "Command not recognized. Try again."
	statusNotAvailable   = "That action is not available right now."
	statusPaymentLocked  = "Payment in progress. Please wait."
	statusPaymentAborted = "Payment could not be completed. Returning to home."
)

func promptAmount(name string) string {
	return fmt.Sprintf("How much would you like to pay %s?", name)
}

func promptConfirm(amount, name, upiID string) string {
	return fmt.Sprintf("Confirm payment of %s rupees to %s at %s. Say approve to proceed.", amount, name, upiID)
}

func promptSuccess(amount, name string) string {
	return fmt.Sprintf("Payment successful! %s rupees sent to %s.", amount, name)
}

func promptHistory(count int) string {
	if count == 1 {
		return "Showing 1 transaction"
	}
	return fmt.Sprintf("Showing %d transactions", count)
}

func statusAmount(name string) string {
	return "Enter Amount for " + name
}

func statusHistory(count int) string {
	return fmt.Sprintf("Transaction History (%d items)", count)
}

// repromptFor is spoken when the user switches listening on. Processing and
// Success have nothing to ask.
func repromptFor(s State) (prompt, status string) {
	switch s {
	case Home:
		return "Say initiate payment to begin.", `Say "Initiate Payment"`
	case SelectRecipient:
		return "Please say the name of the contact.", "Select a contact"
	case EnterAmount:
		return "How much would you like to pay?", "Enter amount"
	case Confirm:
		return "Say approve to confirm the payment.", "Review and approve"
	case History:
		return "Showing transaction history.", "Transaction History"
	}
	return "", ""
}

// PromptListeningOff is spoken when the user switches listening off.
func PromptListeningOff() string { return promptListeningOff }
