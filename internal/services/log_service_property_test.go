package services

import (
	"errors"
	"testing"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_LogLevelFiltering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	levels := []models.LogLevel{
		models.LogLevelDebug,
		models.LogLevelInfo,
		models.LogLevelWarn,
		models.LogLevelError,
	}
	priority := map[models.LogLevel]int{
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}

	// Entries below the configured level are dropped, the rest are stored
	properties.Property("entries_below_level_are_dropped", prop.ForAll(
		func(configuredIdx, entryIdx uint8) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			configured := levels[int(configuredIdx)%len(levels)]
			entry := levels[int(entryIdx)%len(levels)]

			service := NewLogServiceWithLevel(db, string(configured))
			if err := service.Log(LogEntry{
				Level:   entry,
				Module:  models.LogModulePoller,
				Action:  "poll",
				Message: "test entry",
			}); err != nil {
				return false
			}

			var count int64
			db.Model(&models.Log{}).Count(&count)

			if priority[entry] >= priority[configured] {
				return count == 1
			}
			return count == 0
		},
		gen.UInt8(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestQueryLogsFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewLogServiceWithLevel(db, "DEBUG")

	service.LogInfo(1, models.LogModulePoller, "poll", "first poll", nil)
	service.LogInfo(1, models.LogModuleSender, "send", "first send", nil)
	service.LogInfo(2, models.LogModulePoller, "poll", "other account poll", nil)
	service.LogError(1, models.LogModulePoller, "poll", "failed poll", nil)

	result, err := service.QueryLogs(LogQuery{AccountID: 1, Module: string(models.LogModulePoller)})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("expected 2 poller entries for account 1, got %d", result.Total)
	}

	result, err = service.QueryLogs(LogQuery{Level: string(models.LogLevelError)})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("expected 1 error entry, got %d", result.Total)
	}
}

func TestLogPollCycleRecordsOutcome(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewLogServiceWithLevel(db, "INFO")

	if err := service.LogPollCycle(1, 3, 2, 1, nil); err != nil {
		t.Fatalf("LogPollCycle failed: %v", err)
	}
	if err := service.LogPollCycle(1, 0, 0, 0, errors.New("connection refused")); err != nil {
		t.Fatalf("LogPollCycle failed: %v", err)
	}

	var logs []models.Log
	db.Order("id").Find(&logs)
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Level != string(models.LogLevelInfo) {
		t.Errorf("successful poll logged at %q", logs[0].Level)
	}
	if logs[1].Level != string(models.LogLevelError) {
		t.Errorf("failed poll logged at %q", logs[1].Level)
	}
}
