package llm

import (
	"fmt"
	"strings"
)

// DefaultSystemConstraints is sent as the system message.
const DefaultSystemConstraints = "You are a helpful restaurant phone assistant. " +
	"Only accept items that are on the menu. If the caller asks for something " +
	"that is not on the menu, politely say it is not available. Keep replies to " +
	"one or two short sentences suitable for reading aloud."

// SystemPrompt returns the system instruction for a request.
func SystemPrompt(req Request) string {
	if req.SystemConstraints != "" {
		return req.SystemConstraints
	}
	return DefaultSystemConstraints
}

// UserPrompt renders the menu vocabulary and the caller's words.
func UserPrompt(req Request) string {
	var b strings.Builder
	if req.RestaurantName != "" {
		fmt.Fprintf(&b, "You are taking phone orders for %s.\n", req.RestaurantName)
	}
	fmt.Fprintf(&b, "The available items are: %s.\n", strings.Join(req.Vocabulary, ", "))
	b.WriteString("If the caller orders something that is NOT on the menu, politely say it's not available.\n")
	if req.PendingItem != "" {
		fmt.Fprintf(&b, "The caller has been asked to confirm: %s.\n", req.PendingItem)
	}
	fmt.Fprintf(&b, "Caller: %q\n", req.Transcript)
	return b.String()
}
