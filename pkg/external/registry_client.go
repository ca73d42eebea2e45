package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pds-match-service/internal/domain"
)

// TooManyMatchesCode is the issue code the registry returns when a search is ambiguous.
const TooManyMatchesCode = "TOO_MANY_MATCHES"

// RegistryHTTPClient handles interactions with the national person registry over its
// FHIR-style REST API.
type RegistryHTTPClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewRegistryHTTPClient creates a new registry API client
func NewRegistryHTTPClient(config domain.RegistryConfig) *RegistryHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.MaxResults == 0 {
		config.MaxResults = 1
	}

	return &RegistryHTTPClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		maxResults: config.MaxResults,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Bundle is the search response envelope.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry is one search hit with its match score.
type BundleEntry struct {
	FullURL  string  `json:"fullUrl,omitempty"`
	Search   Search  `json:"search"`
	Resource Patient `json:"resource"`
}

// Search carries the registry's confidence in a hit.
type Search struct {
	Score float64 `json:"score"`
}

// Patient is the subset of the registry person resource used for matching.
type Patient struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id"`
	Name         []HumanName    `json:"name,omitempty"`
	BirthDate    string         `json:"birthDate,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	Address      []Address      `json:"address,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
}

// HumanName is a person name.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

// Address holds the postal code of an address.
type Address struct {
	Use        string `json:"use,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// ContactPoint is a phone number or email address.
type ContactPoint struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// OperationOutcome is the registry's error payload.
type OperationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics,omitempty"`
		Details     struct {
			Coding []struct {
				Code    string `json:"code"`
				Display string `json:"display,omitempty"`
			} `json:"coding"`
		} `json:"details"`
	} `json:"issue"`
}

func (o OperationOutcome) hasCode(code string) bool {
	for _, issue := range o.Issue {
		for _, coding := range issue.Details.Coding {
			if coding.Code == code {
				return true
			}
		}
	}
	return false
}

func (o OperationOutcome) message() string {
	var parts []string
	for _, issue := range o.Issue {
		if issue.Diagnostics != "" {
			parts = append(parts, issue.Diagnostics)
			continue
		}
		for _, coding := range issue.Details.Coding {
			if coding.Display != "" {
				parts = append(parts, coding.Display)
			} else if coding.Code != "" {
				parts = append(parts, coding.Code)
			}
		}
	}
	return strings.Join(parts, "; ")
}

// Search executes one query variant.
func (c *RegistryHTTPClient) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return domain.RegistrySearchResult{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullURL := fmt.Sprintf("%s/Patient?%s", c.baseURL, c.searchParams(variant).Encode())

	status, body, err := c.get(ctx, "search", fullURL)
	if err != nil {
		return domain.RegistrySearchResult{}, err
	}

	switch {
	case status == http.StatusOK:
		var bundle Bundle
		if err := json.Unmarshal(body, &bundle); err != nil {
			return domain.RegistrySearchResult{}, &domain.RegistryError{Operation: "search", StatusCode: status, Message: "invalid bundle", Underlying: err}
		}
		return bundleResult(bundle), nil

	case status == http.StatusUnprocessableEntity:
		outcome := decodeOutcome(body)
		if outcome.hasCode(TooManyMatchesCode) {
			return domain.MultiMatched(), nil
		}
		return domain.RegistrySearchResult{}, &domain.RegistryError{Operation: "search", StatusCode: status, Message: outcome.message()}

	default:
		return domain.RegistrySearchResult{}, statusError("search", status, body)
	}
}

// Fetch retrieves the record for identifier. A record returned under a different identifier
// means the requested one was superseded.
func (c *RegistryHTTPClient) Fetch(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullURL := fmt.Sprintf("%s/Patient/%s", c.baseURL, url.PathEscape(identifier))

	status, body, err := c.get(ctx, "fetch", fullURL)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var patient Patient
		if err := json.Unmarshal(body, &patient); err != nil {
			return nil, &domain.RegistryError{Operation: "fetch", StatusCode: status, Message: "invalid patient resource", Underlying: err}
		}
		record := ToPatientRecord(patient)
		if record.ID != "" && record.ID != identifier {
			return nil, &domain.SupersededError{Identifier: identifier, Replacement: record.ID}
		}
		return record, nil

	case http.StatusNotFound:
		return nil, fmt.Errorf("patient %s: %w", identifier, domain.ErrRecordNotFound)

	case http.StatusGone:
		return nil, &domain.SupersededError{Identifier: identifier}

	default:
		return nil, statusError("fetch", status, body)
	}
}

func (c *RegistryHTTPClient) searchParams(variant domain.QueryVariant) url.Values {
	params := url.Values{}

	if variant.FuzzyMatch {
		params.Set("_fuzzy-match", "true")
	}
	if variant.ExactMatch {
		params.Set("_exact-match", "true")
	}
	for _, given := range variant.Given {
		params.Add("given", given)
	}
	if variant.Family != "" {
		params.Set("family", variant.Family)
	}
	for _, entry := range variant.BirthDate {
		params.Add("birthdate", entry.String())
	}
	if variant.Gender != "" {
		params.Set("gender", variant.Gender)
	}
	if variant.PostalCode != "" {
		params.Set("address-postalcode", variant.PostalCode)
	}
	if variant.Phone != "" {
		params.Set("phone", variant.Phone)
	}
	if variant.Email != "" {
		params.Set("email", variant.Email)
	}
	params.Set("_max-results", strconv.Itoa(c.maxResults))

	return params
}

func (c *RegistryHTTPClient) get(ctx context.Context, operation, fullURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	req.Header.Set("Accept", "application/fhir+json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, &domain.RegistryError{Operation: operation, Message: "request failed", Retryable: true, Underlying: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.RegistryError{Operation: operation, StatusCode: resp.StatusCode, Message: "failed to read response", Retryable: true, Underlying: err}
	}

	return resp.StatusCode, body, nil
}

func bundleResult(bundle Bundle) domain.RegistrySearchResult {
	switch {
	case bundle.Total == 0 && len(bundle.Entry) == 0:
		return domain.Unmatched()
	case len(bundle.Entry) == 1 && bundle.Total <= 1:
		entry := bundle.Entry[0]
		result := domain.Matched(entry.Resource.ID, entry.Search.Score)
		result.Record = ToPatientRecord(entry.Resource)
		return result
	default:
		return domain.MultiMatched()
	}
}

func decodeOutcome(body []byte) OperationOutcome {
	var outcome OperationOutcome
	_ = json.Unmarshal(body, &outcome)
	return outcome
}

func statusError(operation string, status int, body []byte) error {
	message := decodeOutcome(body).message()
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.RegistryError{
		Operation:  operation,
		StatusCode: status,
		Message:    message,
		Retryable:  status >= 500 || status == http.StatusTooManyRequests,
	}
}

// ToPatientRecord flattens a registry person resource.
func ToPatientRecord(p Patient) *domain.PatientRecord {
	record := &domain.PatientRecord{
		ID:        p.ID,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
	}

	for _, name := range p.Name {
		record.GivenNames = append(record.GivenNames, name.Given...)
		if record.FamilyName == "" {
			record.FamilyName = name.Family
		}
	}
	for _, address := range p.Address {
		if address.PostalCode != "" {
			record.PostalCodes = append(record.PostalCodes, address.PostalCode)
		}
	}
	for _, contact := range p.Telecom {
		switch contact.System {
		case "phone":
			record.Phones = append(record.Phones, contact.Value)
		case "email":
			record.Emails = append(record.Emails, contact.Value)
		}
	}

	return record
}
