package service

import (
	"fmt"
	"strings"

	"mail-code-service/internal/audit"
	"mail-code-service/internal/metrics"
	"mail-code-service/internal/parser"
	"mail-code-service/internal/store"
)

// PageSize is the number of accounts shown per listing page
const PageSize = 20

// SkipDetail explains one rejected bulk-import candidate. Line is zero for
// rejections that happened at merge time rather than parse time.
type SkipDetail struct {
	Line   int    `json:"line,omitempty"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason"`
}

// ImportReport summarizes one bulk import
type ImportReport struct {
	Added   int          `json:"added"`
	Skipped []SkipDetail `json:"skipped"`
}

// ExportResult is the output of one export operation
type ExportResult struct {
	Accounts  []store.Account
	Content   string
	Remaining int
}

// AccountPage is one page of the account listing
type AccountPage struct {
	Emails []string
	Page   int
	Pages  int
	Total  int
}

// AccountService wraps the credential store with the bulk text formats and
// the audit trail
type AccountService struct {
	store   *store.Store
	audit   *audit.Logger
	metrics *metrics.Metrics
}

// NewAccountService creates an account service
func NewAccountService(st *store.Store, auditLog *audit.Logger, m *metrics.Metrics) *AccountService {
	return &AccountService{
		store:   st,
		audit:   auditLog,
		metrics: m,
	}
}

// ImportText parses a bulk-import document and merges the valid lines into
// the store. Lines that fail to parse or are already saved or previously
// exported are reported individually; the rest commit.
func (s *AccountService) ImportText(text string) (*ImportReport, error) {
	lines, issues := parser.ParseImportText(text)

	candidates := make([]store.Account, 0, len(lines))
	for _, line := range lines {
		candidates = append(candidates, store.Account{
			Email: line.Email,
			Record: store.Record{
				RefreshToken: line.RefreshToken,
				ClientID:     line.ClientID,
				Password:     line.Password,
			},
		})
	}

	added, skipped, err := s.store.BulkMerge(candidates)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Added: added}
	for _, issue := range issues {
		report.Skipped = append(report.Skipped, SkipDetail{Line: issue.Line, Reason: issue.Reason})
	}
	for _, skip := range skipped {
		report.Skipped = append(report.Skipped, SkipDetail{Email: skip.Email, Reason: skip.Reason})
	}

	s.metrics.AccountsImported.Add(float64(added))
	s.metrics.ImportSkips.Add(float64(len(report.Skipped)))
	s.audit.Record("import", "", fmt.Sprintf("added=%d skipped=%d", added, len(report.Skipped)))

	return report, nil
}

// Export dispenses up to amount accounts and renders them in the four-field
// colon format, one account per line
func (s *AccountService) Export(amount int) (*ExportResult, error) {
	dispensed, remaining, err := s.store.Export(amount)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(dispensed))
	for _, acct := range dispensed {
		lines = append(lines, parser.RenderExportLine(acct.Email, acct.Record.Password, acct.Record.RefreshToken, acct.Record.ClientID))
	}

	s.metrics.AccountsExported.Add(float64(len(dispensed)))
	for _, acct := range dispensed {
		s.audit.Record("export", acct.Email, fmt.Sprintf("remaining=%d", remaining))
	}

	return &ExportResult{
		Accounts:  dispensed,
		Content:   strings.Join(lines, "\n"),
		Remaining: remaining,
	}, nil
}

// ListPage returns one page of stored account emails in stored order
func (s *AccountService) ListPage(page int) (*AccountPage, error) {
	if page < 1 {
		page = 1
	}

	accounts, err := s.store.Accounts()
	if err != nil {
		return nil, err
	}

	total := len(accounts)
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}

	emails := make([]string, 0, end-start)
	for _, acct := range accounts[start:end] {
		emails = append(emails, acct.Email)
	}

	return &AccountPage{
		Emails: emails,
		Page:   page,
		Pages:  pages,
		Total:  total,
	}, nil
}
