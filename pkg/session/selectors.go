package session

import "dev/bravebird/weightsync-go/pkg/browser"

// Login form fallback chains, most specific first
var (
	EmailChain = browser.Chain{
		{Selector: `input[name="email"]`},
		{Selector: `input[type="email"]`},
		{Selector: `input:not([type="password"]):not([type="checkbox"])`},
	}
	PasswordChain = browser.Selectors(
		`input[name="password"]`,
		`input[type="password"]`,
	)
	LoginButtonChain = browser.Chain{
		{Selector: `button[type="submit"]`},
		{Selector: `input[type="submit"]`},
		{Selector: "button", Text: "Login"},
	}
)

const loginFormSelector = `input[name="email"], input[type="email"]`
