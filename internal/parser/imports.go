package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// uuidShape matches the 8-4-4-4-12 hex layout used by Azure client IDs
var uuidShape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ImportLine is one parsed account from the bulk-import text format
type ImportLine struct {
	Email        string
	Password     string
	RefreshToken string
	ClientID     string
}

// ImportIssue is a per-line rejection from ParseImportText
type ImportIssue struct {
	Line   int
	Reason string
}

func (i ImportIssue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Reason)
}

// ParseImportLine parses one email:password:refresh_token:client_id line.
// The client_id is the last colon-delimited field with a UUID shape, or the
// last field outright when none matches; everything between the password and
// the client_id rejoins with ':' as the refresh token, so refresh tokens may
// themselves contain colons.
func ParseImportLine(line string) (ImportLine, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return ImportLine{}, fmt.Errorf("expected email:password:refresh_token:client_id")
	}

	email := strings.ToLower(strings.TrimSpace(fields[0]))
	if !strings.Contains(email, "@") {
		return ImportLine{}, fmt.Errorf("invalid email %q", fields[0])
	}

	clientIdx := len(fields) - 1
	for i := len(fields) - 1; i >= 2; i-- {
		if uuidShape.MatchString(fields[i]) {
			clientIdx = i
			break
		}
	}
	refreshToken := strings.Join(fields[2:clientIdx], ":")
	if refreshToken == "" {
		return ImportLine{}, fmt.Errorf("empty refresh_token")
	}

	return ImportLine{
		Email:        email,
		Password:     fields[1],
		RefreshToken: refreshToken,
		ClientID:     fields[clientIdx],
	}, nil
}

// ParseImportText parses a bulk-import document. Blank lines and lines
// starting with '#' are ignored; each remaining line parses independently,
// so one bad line does not reject the batch.
func ParseImportText(text string) ([]ImportLine, []ImportIssue) {
	var accounts []ImportLine
	var issues []ImportIssue

	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed, err := ParseImportLine(line)
		if err != nil {
			issues = append(issues, ImportIssue{Line: n + 1, Reason: err.Error()})
			continue
		}
		accounts = append(accounts, parsed)
	}

	return accounts, issues
}

// RenderExportLine renders one account back into the four-field colon format
func RenderExportLine(email, password, refreshToken, clientID string) string {
	return strings.Join([]string{email, password, refreshToken, clientID}, ":")
}
