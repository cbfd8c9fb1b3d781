package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"gorm.io/gorm"
)

// Skip reasons reported for rejected import candidates
const (
	SkipReasonDuplicate    = "username already taken"
	SkipReasonMissingField = "missing required fields"
)

// RawUserInput is a single candidate row in a bulk user import
type RawUserInput struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// SkippedUser describes a candidate the importer rejected and why
type SkippedUser struct {
	Index    int    `json:"index"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// ImportResult carries the accepted users in input order plus the skipped rows
type ImportResult struct {
	Created []model.User  `json:"created"`
	Skipped []SkippedUser `json:"skipped"`
}

// ImportStore is the narrow persistence surface the importer needs
type ImportStore interface {
	// MaxIDN returns the highest idn assigned within a school, 0 when none
	MaxIDN(ctx context.Context, schoolID uint) (int, error)
	// TakenUsernames reports which of the given lower-cased usernames
	// already exist, across all schools
	TakenUsernames(ctx context.Context, usernames []string) (map[string]bool, error)
	// CreateUser persists a new user and fills in its database ID
	CreateUser(ctx context.Context, user *model.User) error
}

// ImporterService walks candidate user rows in order, assigns each accepted
// row the school's next idn and persists it
type ImporterService struct {
	store ImportStore

	// OnProgress, when set, is called after every processed candidate
	OnProgress func(processed, total, created, skipped int)
}

// NewImporterService creates an importer backed by the GORM database
func NewImporterService(db *gorm.DB) *ImporterService {
	return &ImporterService{store: &gormImportStore{db: db}}
}

// NewImporterServiceWithStore creates an importer on a caller-supplied store
func NewImporterServiceWithStore(store ImportStore) *ImporterService {
	return &ImporterService{store: store}
}

// ImportUsers processes candidates strictly in input order. Usernames are
// lower-cased before checking; a candidate missing username, first or last
// name, or whose username is taken either in storage or earlier in the same
// batch, is skipped without consuming an idn. Accepted rows get idn max+1,
// max+2, ... and default to the student role. A persistence failure stops the
// batch: rows created before the failure stay in the database and are
// returned alongside the error.
//
// Batches with at most one candidate skip every database check and echo the
// input back unpersisted. Callers relying on single-row creation must route
// through the regular user creation path instead.
func (s *ImporterService) ImportUsers(ctx context.Context, schoolID uint, candidates []RawUserInput) (*ImportResult, error) {
	result := &ImportResult{
		Created: []model.User{},
		Skipped: []SkippedUser{},
	}

	if len(candidates) <= 1 {
		for _, c := range candidates {
			result.Created = append(result.Created, model.User{
				SchoolID:  schoolID,
				Username:  c.Username,
				FirstName: c.FirstName,
				LastName:  c.LastName,
				Email:     c.Email,
				Phone:     c.Phone,
				Address:   c.Address,
				IsStudent: true,
			})
		}
		return result, nil
	}

	maxIDN, err := s.store.MaxIDN(ctx, schoolID)
	if err != nil {
		return result, fmt.Errorf("failed to fetch max idn: %w", err)
	}

	// One round trip up front; claimed tracks usernames accepted in this
	// batch so later duplicates are rejected without re-querying
	normalized := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if username := model.NormalizeUsername(c.Username); username != "" {
			normalized = append(normalized, username)
		}
	}

	claimed, err := s.store.TakenUsernames(ctx, normalized)
	if err != nil {
		return result, fmt.Errorf("failed to check usernames: %w", err)
	}
	if claimed == nil {
		claimed = make(map[string]bool)
	}

	nextIDN := maxIDN + 1
	total := len(candidates)

	for i, c := range candidates {
		username := model.NormalizeUsername(c.Username)
		firstName := strings.TrimSpace(c.FirstName)
		lastName := strings.TrimSpace(c.LastName)

		switch {
		case username == "" || firstName == "" || lastName == "":
			result.Skipped = append(result.Skipped, SkippedUser{
				Index:    i,
				Username: username,
				Reason:   SkipReasonMissingField,
			})
			metrics.UsersImportedTotal.WithLabelValues("skipped").Inc()

		case claimed[username]:
			result.Skipped = append(result.Skipped, SkippedUser{
				Index:    i,
				Username: username,
				Reason:   SkipReasonDuplicate,
			})
			metrics.UsersImportedTotal.WithLabelValues("skipped").Inc()

		default:
			user := model.User{
				SchoolID:  schoolID,
				IDN:       nextIDN,
				Username:  username,
				FirstName: firstName,
				LastName:  lastName,
				Email:     strings.TrimSpace(c.Email),
				Phone:     strings.TrimSpace(c.Phone),
				Address:   strings.TrimSpace(c.Address),
				IsStudent: true,
			}

			if err := s.store.CreateUser(ctx, &user); err != nil {
				return result, fmt.Errorf("failed to create user %q: %w", username, err)
			}

			claimed[username] = true
			nextIDN++
			result.Created = append(result.Created, user)
			metrics.UsersImportedTotal.WithLabelValues("created").Inc()
		}

		if s.OnProgress != nil {
			s.OnProgress(i+1, total, len(result.Created), len(result.Skipped))
		}
	}

	return result, nil
}

// gormImportStore is the production ImportStore
type gormImportStore struct {
	db *gorm.DB
}

func (s *gormImportStore) MaxIDN(ctx context.Context, schoolID uint) (int, error) {
	var maxIDN int
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("school_id = ?", schoolID).
		Select("COALESCE(MAX(idn), 0)").
		Scan(&maxIDN).Error
	return maxIDN, err
}

func (s *gormImportStore) TakenUsernames(ctx context.Context, usernames []string) (map[string]bool, error) {
	taken := make(map[string]bool, len(usernames))
	if len(usernames) == 0 {
		return taken, nil
	}

	var existing []string
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("username IN ?", usernames).
		Pluck("username", &existing).Error
	if err != nil {
		return nil, err
	}

	for _, u := range existing {
		taken[u] = true
	}
	return taken, nil
}

func (s *gormImportStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}
