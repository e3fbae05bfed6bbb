package dialogue

import (
	"fmt"
	"strings"

	"voice-order-service/internal/models"
)

const (
	apologyReply            = "Sorry, I didn't catch that. Could you say it again?"
	silenceReply            = "Sorry, I didn't hear anything. What would you like to order?"
	tooManyFailuresReply    = "Sorry, we're having trouble hearing you. Please call back in a moment. Goodbye."
	persistenceFailureReply = "Sorry, I could not save your order. Would you like me to try again?"
)

// Greeting recites the whole menu and asks for an order.
func Greeting(restaurantName string, menu models.MenuSnapshot) string {
	var b strings.Builder
	if restaurantName != "" {
		fmt.Fprintf(&b, "Hello! Welcome to %s.", restaurantName)
	} else {
		b.WriteString("Hello! Thanks for calling.")
	}
	if !menu.Empty() {
		b.WriteString(" Here's our menu: ")
		cats := make([]string, 0, len(menu.Categories))
		for _, cat := range menu.Categories {
			items := make([]string, 0, len(cat.Items))
			for _, item := range cat.Items {
				items = append(items, fmt.Sprintf("%s %s", item.Name, models.FormatPrice(item.Price)))
			}
			cats = append(cats, fmt.Sprintf("%s: %s", cat.Category, strings.Join(items, ", ")))
		}
		b.WriteString(strings.Join(cats, ". "))
		b.WriteString(".")
	}
	b.WriteString(" What would you like to order?")
	return b.String()
}
