package functions

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/sanctum-labs/sanctum/store"
)

// GetClientBackgroundFunctionDeclaration returns the tool declaration the
// live model uses to pull a client's notes mid-session.
func GetClientBackgroundFunctionDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "get_client_background",
		Description: "Look up the background notes, contact details and session history of the current therapy client.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"clientId": {
					Type:        genai.TypeString,
					Description: "The id of the client to look up.",
				},
			},
			Required: []string{"clientId"},
		},
	}
}

// GetClientBackground resolves the tool call against the store.
func GetClientBackground(s *store.Store, clientID string) string {
	c, err := s.GetClient(clientID)
	if err != nil {
		return fmt.Sprintf("No record found for client %q.", clientID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\n", c.Name)
	if c.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", c.Email)
	}
	if c.LastSession != "" {
		fmt.Fprintf(&b, "Last session: %s\n", c.LastSession)
	}
	if c.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", c.Notes)
	}
	scripts := s.ListScripts(c.ID)
	if len(scripts) > 0 {
		fmt.Fprintf(&b, "Scripts on file: %d (latest: %s)\n", len(scripts), scripts[0].Title)
	}
	return b.String()
}
