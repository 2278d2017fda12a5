package bank

import "fmt"

func signupNotice(u *User) string {
	return fmt.Sprintf("New account pending approval: %s (%s)", u.Username, u.Email)
}

func welcomeMessage(u *User) string {
	return fmt.Sprintf("Welcome %s! Your account has been created and is pending review. "+
		"You will receive a message here once an administrator has reviewed it.", u.DisplayName())
}

func statusNotice(status UserStatus) string {
	return fmt.Sprintf("Your account status changed to %s", status)
}

func statusMessage(status UserStatus, reason string) string {
	var text string
	switch status {
	case UserStatusApproved:
		text = "Your account has been approved. You now have full access to your account."
	case UserStatusRejected:
		text = "Your account application has been rejected."
	case UserStatusSuspended:
		text = "Your account has been suspended. Contact support for more information."
	case UserStatusPending:
		text = "Your account has been moved back to pending review."
	default:
		text = fmt.Sprintf("Your account status is now %s.", status)
	}
	if reason != "" {
		text += " Reason: " + reason
	}
	return text
}

func passwordResetRequestNotice(u *User) string {
	return fmt.Sprintf("Password reset requested by %s (%s)", u.Username, u.Email)
}

func passwordResetNotice() string {
	return "Your password was reset by an administrator"
}

func passwordResetMessage() string {
	return "Your password has been reset by an administrator. " +
		"Sign in with the temporary password you were given and change it as soon as possible."
}

func cardSubmittedNotice(u *User, brand, last4 string) string {
	if brand == "" {
		brand = "card"
	}
	return fmt.Sprintf("%s submitted a %s ending in %s for review", u.Username, brand, last4)
}

func cardReviewedNotice(approved bool, last4 string) string {
	if approved {
		return fmt.Sprintf("Your card ending in %s has been approved", last4)
	}
	return fmt.Sprintf("Your card ending in %s was not approved", last4)
}
