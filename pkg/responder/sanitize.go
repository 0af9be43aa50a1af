package responder

import "strings"

const pingGuard = "꩜"

// Sanitize defuses mass pings in generated text so the bot cannot notify
// @here, @everyone or any of the given role names.
func Sanitize(text string, pingRoles []string) string {
	pairs := []string{"@here", pingGuard + "here", "@everyone", pingGuard + "everyone"}
	for _, role := range pingRoles {
		if role = strings.TrimSpace(role); role != "" {
			pairs = append(pairs, "@"+role, pingGuard+role)
		}
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
