package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"gorm.io/gorm"
)

// LogService handles logging operations
type LogService struct {
	db       *gorm.DB
	logLevel models.LogLevel
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{
		db:       db,
		logLevel: models.LogLevelInfo,
	}
}

// NewLogServiceWithLevel creates a new LogService instance with specified log level
func NewLogServiceWithLevel(db *gorm.DB, level string) *LogService {
	return &LogService{
		db:       db,
		logLevel: parseLogLevel(level),
	}
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) models.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return models.LogLevelDebug
	case "INFO":
		return models.LogLevelInfo
	case "WARN", "WARNING":
		return models.LogLevelWarn
	case "ERROR":
		return models.LogLevelError
	default:
		return models.LogLevelInfo
	}
}

// SetLogLevel sets the minimum log level
func (s *LogService) SetLogLevel(level string) {
	s.logLevel = parseLogLevel(level)
}

// shouldLog checks if a log entry should be recorded based on log level
func (s *LogService) shouldLog(level models.LogLevel) bool {
	levelPriority := map[models.LogLevel]int{
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}

	return levelPriority[level] >= levelPriority[s.logLevel]
}

// LogEntry represents a log entry to be created
type LogEntry struct {
	AccountID uint
	Level     models.LogLevel
	Module    models.LogModule
	Action    string
	Message   string
	Details   interface{} // serialized to JSON
}

// Log creates a new log entry
func (s *LogService) Log(entry LogEntry) error {
	if !s.shouldLog(entry.Level) {
		return nil
	}

	var detailsJSON string
	if entry.Details != nil {
		bytes, err := json.Marshal(entry.Details)
		if err != nil {
			detailsJSON = "{}"
		} else {
			detailsJSON = string(bytes)
		}
	}

	log := &models.Log{
		AccountID: entry.AccountID,
		Level:     string(entry.Level),
		Module:    string(entry.Module),
		Action:    entry.Action,
		Message:   entry.Message,
		Details:   detailsJSON,
	}

	return s.db.Create(log).Error
}

// LogInfo creates an INFO level log entry
func (s *LogService) LogInfo(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{AccountID: accountID, Level: models.LogLevelInfo, Module: module, Action: action, Message: message, Details: details})
}

// LogWarn creates a WARN level log entry
func (s *LogService) LogWarn(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{AccountID: accountID, Level: models.LogLevelWarn, Module: module, Action: action, Message: message, Details: details})
}

// LogError creates an ERROR level log entry
func (s *LogService) LogError(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{AccountID: accountID, Level: models.LogLevelError, Module: module, Action: action, Message: message, Details: details})
}

// LogDebug creates a DEBUG level log entry
func (s *LogService) LogDebug(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{AccountID: accountID, Level: models.LogLevelDebug, Module: module, Action: action, Message: message, Details: details})
}

// PollDetails represents details for poll cycle logs
type PollDetails struct {
	Matched  int    `json:"matched,omitempty"`
	Answered int    `json:"answered,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// LogPollCycle logs the outcome of one mailbox poll for an account
func (s *LogService) LogPollCycle(accountID uint, matched, answered, skipped int, err error) error {
	details := PollDetails{Matched: matched, Answered: answered, Skipped: skipped}

	level := models.LogLevelInfo
	message := "Mailbox poll completed"

	if err != nil {
		level = models.LogLevelError
		details.ErrorMsg = err.Error()
		message = "Mailbox poll failed"
	}

	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     level,
		Module:    models.LogModulePoller,
		Action:    "poll",
		Message:   message,
		Details:   details,
	})
}

// ReplyDetails represents details for reply dispatch logs
type ReplyDetails struct {
	To       string `json:"to"`
	Subject  string `json:"subject,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// LogReplySent logs a reply dispatch attempt
func (s *LogService) LogReplySent(accountID uint, to, subject string, err error) error {
	details := ReplyDetails{To: to, Subject: subject}

	level := models.LogLevelInfo
	message := "Reply sent"

	if err != nil {
		level = models.LogLevelError
		details.ErrorMsg = err.Error()
		message = "Failed to send reply"
	}

	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     level,
		Module:    models.LogModuleSender,
		Action:    "send",
		Message:   message,
		Details:   details,
	})
}

// TokenDetails represents details for token lifecycle logs
type TokenDetails struct {
	Provider string `json:"provider,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// LogTokenRefresh logs a token refresh attempt
func (s *LogService) LogTokenRefresh(accountID uint, provider string, err error) error {
	details := TokenDetails{Provider: provider}

	level := models.LogLevelInfo
	message := "Access token refreshed"

	if err != nil {
		level = models.LogLevelWarn
		details.ErrorMsg = err.Error()
		message = "Access token refresh failed"
	}

	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     level,
		Module:    models.LogModuleToken,
		Action:    "refresh",
		Message:   message,
		Details:   details,
	})
}

// AccountChangeDetails represents details for account configuration changes
type AccountChangeDetails struct {
	AccountID    uint   `json:"account_id"`
	AccountEmail string `json:"account_email"`
	Field        string `json:"field,omitempty"`
	NewValue     string `json:"new_value,omitempty"`
}

// LogAccountCreated logs an account creation event
func (s *LogService) LogAccountCreated(accountID uint, email string) error {
	return s.LogInfo(accountID, models.LogModuleAccount, "create", "Email account created", AccountChangeDetails{
		AccountID:    accountID,
		AccountEmail: email,
	})
}

// LogAccountUpdated logs an account update event
func (s *LogService) LogAccountUpdated(accountID uint, email string) error {
	return s.LogInfo(accountID, models.LogModuleAccount, "update", "Email account updated", AccountChangeDetails{
		AccountID:    accountID,
		AccountEmail: email,
	})
}

// LogAccountDeleted logs an account deletion event
func (s *LogService) LogAccountDeleted(accountID uint, email string) error {
	return s.LogInfo(accountID, models.LogModuleAccount, "delete", "Email account deleted", AccountChangeDetails{
		AccountID:    accountID,
		AccountEmail: email,
	})
}

// LogAccountStatusChanged logs an account status change event
func (s *LogService) LogAccountStatusChanged(accountID uint, email string, active bool) error {
	status := "deactivated"
	if active {
		status = "activated"
	}
	return s.LogInfo(accountID, models.LogModuleAccount, "status_change", "Email account "+status, AccountChangeDetails{
		AccountID:    accountID,
		AccountEmail: email,
		Field:        "active",
		NewValue:     status,
	})
}

// LogQuery represents query parameters for log retrieval
type LogQuery struct {
	AccountID uint
	Level     string
	Module    string
	Action    string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	Limit     int
}

// LogQueryResult represents the result of a log query
type LogQueryResult struct {
	Total int64
	Logs  []models.Log
}

// QueryLogs retrieves logs based on query parameters
func (s *LogService) QueryLogs(query LogQuery) (*LogQueryResult, error) {
	db := s.db.Model(&models.Log{})

	if query.AccountID > 0 {
		db = db.Where("account_id = ?", query.AccountID)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.Module != "" {
		db = db.Where("module = ?", query.Module)
	}
	if query.Action != "" {
		db = db.Where("action = ?", query.Action)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", query.EndTime)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}

	offset := (query.Page - 1) * query.Limit

	var logs []models.Log
	if err := db.Order("created_at DESC").Offset(offset).Limit(query.Limit).Find(&logs).Error; err != nil {
		return nil, err
	}

	return &LogQueryResult{
		Total: total,
		Logs:  logs,
	}, nil
}

// GetRecentLogs retrieves the most recent logs
func (s *LogService) GetRecentLogs(limit int) ([]models.Log, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []models.Log
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
