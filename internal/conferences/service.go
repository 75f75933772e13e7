package conferences

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/confdesk/backend/internal/users"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrConferenceNotFound indicates no conference matched the lookup.
	ErrConferenceNotFound = errors.New("conferences: conference not found")
	// ErrInvalidConference indicates the input failed validation.
	ErrInvalidConference = errors.New("conferences: invalid conference")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable dotted code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "conferences.service.new"
	opLoadAll     = "conferences.load_all"
	opCreate      = "conferences.create"
	opGet         = "conferences.get"
	opList        = "conferences.list"
	opUpdate      = "conferences.update"
	opFindByName  = "conferences.find_by_name"
	subthemeBatch = 500
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service reads and writes conferences with their subthemes.
type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	validate *validator.Validate
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

// LoadAll returns every conference in id order, each with its subthemes in id order.
func (s *Service) LoadAll(ctx context.Context) ([]Theme, error) {
	if s.db == nil {
		return nil, newServiceError(opLoadAll, "missing_database", errMissingDatabase)
	}

	var conferenceRows []ConferenceRecord
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&conferenceRows).Error; err != nil {
		s.logError(opLoadAll, "conference_query_failed", err)
		return nil, newServiceError(opLoadAll, "conference_query_failed", err)
	}

	var subthemeRows []SubthemeRecord
	if err := s.db.WithContext(ctx).Order("conference_id ASC, id ASC").Find(&subthemeRows).Error; err != nil {
		s.logError(opLoadAll, "subtheme_query_failed", err)
		return nil, newServiceError(opLoadAll, "subtheme_query_failed", err)
	}

	byConference := make(map[int64][]Subtheme, len(conferenceRows))
	for _, row := range subthemeRows {
		byConference[row.ConferenceID] = append(byConference[row.ConferenceID], row.toSubtheme())
	}

	themes := make([]Theme, 0, len(conferenceRows))
	for _, row := range conferenceRows {
		subthemes := byConference[row.ID]
		if subthemes == nil {
			subthemes = []Subtheme{}
		}
		themes = append(themes, Theme{Conference: row.toConference(), Subthemes: subthemes})
	}
	return themes, nil
}

// Create stores a conference with categories, subthemes and participant links.
func (s *Service) Create(ctx context.Context, input ConferenceInput) (ConferenceID, error) {
	if s.db == nil {
		return 0, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	input, err := s.normalizeInput(input)
	if err != nil {
		return 0, newServiceError(opCreate, "invalid_input", err)
	}

	record := ConferenceRecord{
		Name:         input.Name,
		Description:  input.Description.Ptr(),
		OriginalText: input.OriginalText,
		ImprovedText: input.ImprovedText,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opCreate, "conference_insert_failed", err)
		}
		if err := replaceCategories(tx, record.ID, input.Categories); err != nil {
			return newServiceError(opCreate, "category_insert_failed", err)
		}
		for _, subtheme := range input.Subthemes {
			if _, err := insertSubtheme(tx, record.ID, subtheme); err != nil {
				return newServiceError(opCreate, "subtheme_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreate, "transaction_failed", txErr, zap.String("name", input.Name))
		return 0, txErr
	}
	return ConferenceID(record.ID), nil
}

// Get returns a conference with subthemes and the participants of each subtheme.
func (s *Service) Get(ctx context.Context, id ConferenceID) (ConferenceDetails, error) {
	if s.db == nil {
		return ConferenceDetails{}, newServiceError(opGet, "missing_database", errMissingDatabase)
	}

	var record ConferenceRecord
	err := s.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ConferenceDetails{}, newServiceError(opGet, "not_found", ErrConferenceNotFound)
	} else if err != nil {
		s.logError(opGet, "conference_query_failed", err, zap.Int64("conference_id", int64(id)))
		return ConferenceDetails{}, newServiceError(opGet, "conference_query_failed", err)
	}

	var subthemeRows []SubthemeRecord
	if err := s.db.WithContext(ctx).Where("conference_id = ?", record.ID).Order("id ASC").Find(&subthemeRows).Error; err != nil {
		s.logError(opGet, "subtheme_query_failed", err, zap.Int64("conference_id", record.ID))
		return ConferenceDetails{}, newServiceError(opGet, "subtheme_query_failed", err)
	}

	details := ConferenceDetails{
		Conference: record.toConference(),
		Subthemes:  make([]SubthemeDetails, 0, len(subthemeRows)),
	}
	for _, row := range subthemeRows {
		var participants []users.User
		err := s.db.WithContext(ctx).
			Model(&users.User{}).
			Joins("JOIN subtheme_users ON subtheme_users.user_id = users.id").
			Where("subtheme_users.subtheme_id = ?", row.ID).
			Order("users.id ASC").
			Find(&participants).Error
		if err != nil {
			s.logError(opGet, "participant_query_failed", err, zap.Int64("subtheme_id", row.ID))
			return ConferenceDetails{}, newServiceError(opGet, "participant_query_failed", err)
		}
		if participants == nil {
			participants = []users.User{}
		}
		details.Subthemes = append(details.Subthemes, SubthemeDetails{Subtheme: row.toSubtheme(), Users: participants})
	}
	return details, nil
}

// List returns conference summaries, newest first.
func (s *Service) List(ctx context.Context) ([]ConferenceSummary, error) {
	if s.db == nil {
		return nil, newServiceError(opList, "missing_database", errMissingDatabase)
	}
	var rows []ConferenceRecord
	if err := s.db.WithContext(ctx).Select("id", "name", "description").Order("id DESC").Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	summaries := make([]ConferenceSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, ConferenceSummary{
			ID:          ConferenceID(row.ID),
			Name:        row.Name,
			Description: DescriptionFromPtr(row.Description),
		})
	}
	return summaries, nil
}

// Update replaces the conference fields and reconciles its subthemes: subthemes with
// an id are updated, new ones inserted, and the ones missing from input deleted.
func (s *Service) Update(ctx context.Context, id ConferenceID, input ConferenceInput) error {
	if s.db == nil {
		return newServiceError(opUpdate, "missing_database", errMissingDatabase)
	}
	input, err := s.normalizeInput(input)
	if err != nil {
		return newServiceError(opUpdate, "invalid_input", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ConferenceRecord{}).Where("id = ?", int64(id)).Updates(map[string]any{
			"name":          input.Name,
			"description":   input.Description.Ptr(),
			"original_text": input.OriginalText,
			"improved_text": input.ImprovedText,
		})
		if result.Error != nil {
			return newServiceError(opUpdate, "conference_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&ConferenceRecord{}).Where("id = ?", int64(id)).Count(&count).Error; err != nil {
				return newServiceError(opUpdate, "conference_query_failed", err)
			}
			if count == 0 {
				return newServiceError(opUpdate, "not_found", ErrConferenceNotFound)
			}
		}

		var existingIDs []int64
		if err := tx.Model(&SubthemeRecord{}).Where("conference_id = ?", int64(id)).Pluck("id", &existingIDs).Error; err != nil {
			return newServiceError(opUpdate, "subtheme_query_failed", err)
		}
		existing := make(map[int64]struct{}, len(existingIDs))
		for _, existingID := range existingIDs {
			existing[existingID] = struct{}{}
		}

		kept := make(map[int64]struct{}, len(input.Subthemes))
		for _, subtheme := range input.Subthemes {
			if subtheme.ID != nil {
				if _, ok := existing[int64(*subtheme.ID)]; ok {
					if err := updateSubtheme(tx, subtheme); err != nil {
						return newServiceError(opUpdate, "subtheme_update_failed", err)
					}
					kept[int64(*subtheme.ID)] = struct{}{}
					continue
				}
			}
			insertedID, err := insertSubtheme(tx, int64(id), subtheme)
			if err != nil {
				return newServiceError(opUpdate, "subtheme_insert_failed", err)
			}
			kept[insertedID] = struct{}{}
		}

		stale := make([]int64, 0)
		for _, existingID := range existingIDs {
			if _, ok := kept[existingID]; !ok {
				stale = append(stale, existingID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("subtheme_id IN ?", stale).Delete(&SubthemeUserRecord{}).Error; err != nil {
				return newServiceError(opUpdate, "subtheme_delete_failed", err)
			}
			if err := tx.Where("id IN ?", stale).Delete(&SubthemeRecord{}).Error; err != nil {
				return newServiceError(opUpdate, "subtheme_delete_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrConferenceNotFound) {
			s.logError(opUpdate, "transaction_failed", txErr, zap.Int64("conference_id", int64(id)))
		}
		return txErr
	}
	return nil
}

// FindIDByName returns the id of the first conference with exactly this name.
func (s *Service) FindIDByName(ctx context.Context, name string) (ConferenceID, error) {
	if s.db == nil {
		return 0, newServiceError(opFindByName, "missing_database", errMissingDatabase)
	}
	var record ConferenceRecord
	err := s.db.WithContext(ctx).Select("id").Where("name = ?", strings.TrimSpace(name)).Order("id ASC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, newServiceError(opFindByName, "not_found", ErrConferenceNotFound)
	} else if err != nil {
		s.logError(opFindByName, "query_failed", err)
		return 0, newServiceError(opFindByName, "query_failed", err)
	}
	return ConferenceID(record.ID), nil
}

func (s *Service) normalizeInput(input ConferenceInput) (ConferenceInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if len(input.Categories) == 0 {
		input.Categories = []int64{DefaultCategoryID}
	}
	for index := range input.Subthemes {
		input.Subthemes[index].Name = strings.TrimSpace(input.Subthemes[index].Name)
		if input.Subthemes[index].TypeID == 0 {
			input.Subthemes[index].TypeID = DefaultSubthemeTypeID
		}
	}
	if err := s.validate.Struct(input); err != nil {
		return ConferenceInput{}, fmt.Errorf("%w: %v", ErrInvalidConference, err)
	}
	return input, nil
}

func replaceCategories(tx *gorm.DB, conferenceID int64, categories []int64) error {
	if err := tx.Where("conference_id = ?", conferenceID).Delete(&ConferenceCategoryRecord{}).Error; err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(categories))
	links := make([]ConferenceCategoryRecord, 0, len(categories))
	for _, categoryID := range categories {
		if _, ok := seen[categoryID]; ok {
			continue
		}
		seen[categoryID] = struct{}{}
		links = append(links, ConferenceCategoryRecord{ConferenceID: conferenceID, CategoryID: categoryID})
	}
	if len(links) == 0 {
		return nil
	}
	return tx.Create(&links).Error
}

func insertSubtheme(tx *gorm.DB, conferenceID int64, input SubthemeInput) (int64, error) {
	record := SubthemeRecord{
		ConferenceID: conferenceID,
		Name:         input.Name,
		Description:  input.Description.Ptr(),
		TypeID:       input.TypeID,
	}
	if err := tx.Create(&record).Error; err != nil {
		return 0, err
	}
	if err := replaceParticipants(tx, record.ID, input.UserIDs); err != nil {
		return 0, err
	}
	return record.ID, nil
}

func updateSubtheme(tx *gorm.DB, input SubthemeInput) error {
	subthemeID := int64(*input.ID)
	err := tx.Model(&SubthemeRecord{}).Where("id = ?", subthemeID).Updates(map[string]any{
		"name":        input.Name,
		"description": input.Description.Ptr(),
		"type_id":     input.TypeID,
	}).Error
	if err != nil {
		return err
	}
	return replaceParticipants(tx, subthemeID, input.UserIDs)
}

func replaceParticipants(tx *gorm.DB, subthemeID int64, userIDs []int64) error {
	if err := tx.Where("subtheme_id = ?", subthemeID).Delete(&SubthemeUserRecord{}).Error; err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(userIDs))
	links := make([]SubthemeUserRecord, 0, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		links = append(links, SubthemeUserRecord{SubthemeID: subthemeID, UserID: userID})
	}
	if len(links) == 0 {
		return nil
	}
	return tx.CreateInBatches(&links, subthemeBatch).Error
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("conferences service error", attrs...)
}
