//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	permanentCode  = "4821"
)

var (
	baseURL      string
	dbURL        string
	teacherID    = uuid.New()
	studentID    = uuid.New()
	classroomID  = uuid.New()
	testID       = uuid.New()
	debateID     = uuid.New()
	teacherToken string
	studentToken string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Tokens are signed with the server's secret; issuance is not part of the API.
	cfg := config.Load()
	dbURL = cfg.DatabaseURL
	auth := service.NewAuthService(cfg)

	var err error
	if teacherToken, err = auth.GenerateToken(teacherID, service.RoleTeacher); err != nil {
		fmt.Printf("Sign teacher token: %v\n", err)
		os.Exit(1)
	}
	if studentToken, err = auth.GenerateToken(studentID, service.RoleStudent); err != nil {
		fmt.Printf("Sign student token: %v\n", err)
		os.Exit(1)
	}

	if err := seed(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// seed creates one teacher, one enrolled student, a published ten-question
// test with no schedule and a debate assignment.
func seed() error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	hash, err := bcrypt.GenerateFromPassword([]byte(permanentCode), bcrypt.MinCost)
	if err != nil {
		return err
	}

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO teachers (id, name, email, bypass_code_hash) VALUES ($1, 'E2E Teacher', $2, $3)`,
			[]any{teacherID, "teacher-" + teacherID.String() + "@example.com", string(hash)}},
		{`INSERT INTO students (id, name, email) VALUES ($1, 'E2E Student', $2)`,
			[]any{studentID, "student-" + studentID.String() + "@example.com"}},
		{`INSERT INTO classrooms (id, teacher_id, name) VALUES ($1, $2, 'E2E Class')`,
			[]any{classroomID, teacherID}},
		{`INSERT INTO classroom_students (classroom_id, student_id) VALUES ($1, $2)`,
			[]any{classroomID, studentID}},
		{`INSERT INTO tests (id, teacher_id, classroom_id, title, status, attempt_limit)
		  VALUES ($1, $2, $3, 'E2E Test', 'published', 2)`,
			[]any{testID, teacherID, classroomID}},
		{`INSERT INTO test_questions (test_id, question_index, question, answer_key)
		  SELECT $1, i, 'Question ' || i, 'Answer ' || i FROM generate_series(0, 9) AS i`,
			[]any{testID}},
		{`INSERT INTO debate_assignments (id, teacher_id, classroom_id, topic)
		  VALUES ($1, $2, $3, 'Homework should be optional')`,
			[]any{debateID, teacherID, classroomID}},
	}
	for _, s := range stmts {
		if _, err := conn.Exec(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type attemptBody struct {
	Attempt struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		IsLocked bool              `json:"is_locked"`
		Answers  map[string]string `json:"answers"`
	} `json:"attempt"`
}

func TestTestAttemptFlow(t *testing.T) {
	var attemptID string

	t.Run("Availability", func(t *testing.T) {
		var body struct {
			Allowed bool `json:"allowed"`
		}
		status := call(t, http.MethodGet, fmt.Sprintf("/student/tests/%s/availability", testID), nil, studentToken, &body)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Allowed)
	})

	t.Run("StartAttempt", func(t *testing.T) {
		var body attemptBody
		status := call(t, http.MethodPost, fmt.Sprintf("/student/tests/%s/attempts", testID), nil, studentToken, &body)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "in_progress", body.Attempt.Status)
		attemptID = body.Attempt.ID
	})
	require.NotEmpty(t, attemptID)
	attemptPath := "/student/attempts/" + attemptID

	t.Run("TeacherCannotUseStudentRoutes", func(t *testing.T) {
		status := call(t, http.MethodGet, attemptPath, nil, teacherToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("Questions", func(t *testing.T) {
		var body struct {
			Questions []struct {
				Index int `json:"question_index"`
			} `json:"questions"`
		}
		status := call(t, http.MethodGet, attemptPath+"/questions", nil, studentToken, &body)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body.Questions, 10)
	})

	t.Run("SaveAnswer", func(t *testing.T) {
		status := call(t, http.MethodPut, attemptPath+"/answers",
			map[string]any{"question_index": 0, "answer": "My first answer"}, studentToken, nil)
		require.Equal(t, http.StatusOK, status)

		status = call(t, http.MethodPut, attemptPath+"/answers",
			map[string]any{"question_index": 10, "answer": "out of range"}, studentToken, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("SecondViolationLocks", func(t *testing.T) {
		var body attemptBody
		status := call(t, http.MethodPost, attemptPath+"/violations", map[string]string{"type": "tab_switch"}, studentToken, &body)
		require.Equal(t, http.StatusOK, status)
		assert.False(t, body.Attempt.IsLocked)

		status = call(t, http.MethodPost, attemptPath+"/violations", map[string]string{"type": "tab_switch"}, studentToken, &body)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Attempt.IsLocked)

		status = call(t, http.MethodPut, attemptPath+"/answers",
			map[string]any{"question_index": 1, "answer": "blocked"}, studentToken, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("UnlockWithWrongCode", func(t *testing.T) {
		status := call(t, http.MethodPost, attemptPath+"/unlock", map[string]string{"code": "!BYPASS-0000"}, studentToken, nil)
		assert.NotEqual(t, http.StatusOK, status)
	})

	t.Run("UnlockWithPermanentCode", func(t *testing.T) {
		var body attemptBody
		status := call(t, http.MethodPost, attemptPath+"/unlock", map[string]string{"code": "!BYPASS-" + permanentCode}, studentToken, &body)
		require.Equal(t, http.StatusOK, status)
		assert.False(t, body.Attempt.IsLocked)
		assert.Empty(t, body.Attempt.Answers)
	})

	t.Run("Submit", func(t *testing.T) {
		var body attemptBody
		status := call(t, http.MethodPost, attemptPath+"/submit", nil, studentToken, &body)
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "submitted", body.Attempt.Status)

		status = call(t, http.MethodPost, attemptPath+"/submit", nil, studentToken, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("TeacherResult", func(t *testing.T) {
		status := call(t, http.MethodGet, "/teacher/attempts/"+attemptID+"/result", nil, teacherToken, nil)
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestScheduleAndBypass(t *testing.T) {
	t.Run("RejectsInvalidWindow", func(t *testing.T) {
		req := map[string]any{
			"timezone":  "Europe/Berlin",
			"is_active": true,
			"windows":   []map[string]any{{"days": []string{"funday"}, "start_time": "25:00", "end_time": "10:00"}},
		}
		status := call(t, http.MethodPut, fmt.Sprintf("/teacher/tests/%s/schedule", testID), req, teacherToken, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("IssueOverrideCode", func(t *testing.T) {
		req := map[string]any{
			"student_id":   studentID.String(),
			"context_type": "test_schedule",
			"context_id":   testID.String(),
		}
		var body struct {
			OverrideCode struct {
				Code string `json:"code"`
			} `json:"override_code"`
		}
		status := call(t, http.MethodPost, "/teacher/override-codes", req, teacherToken, &body)
		require.Equal(t, http.StatusCreated, status)
		require.Len(t, body.OverrideCode.Code, len(bypass.OneTimePrefix)+bypass.CodeLength)

		var res struct {
			Valid    bool   `json:"valid"`
			CodeType string `json:"code_type"`
		}
		status = call(t, http.MethodPost, "/student/bypass/validate", map[string]string{
			"code":         body.OverrideCode.Code,
			"context_type": "test_schedule",
			"context_id":   testID.String(),
		}, studentToken, &res)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, res.Valid)
		assert.Equal(t, "onetime", res.CodeType)
	})
}

func TestDebateStart(t *testing.T) {
	path := fmt.Sprintf("/student/debates/%s", debateID)

	var first, second struct {
		Debate struct {
			ID string `json:"id"`
		} `json:"debate"`
		NextAction string `json:"next_action"`
	}
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, path, nil, studentToken, &first))
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, path, nil, studentToken, &second))
	assert.Equal(t, first.Debate.ID, second.Debate.ID)
	assert.Equal(t, "submit_post", first.NextAction)

	status := call(t, http.MethodPost, path+"/posts", map[string]string{"content": "too short"}, studentToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// Helpers

// call sends a JSON request and decodes the envelope's data into out.
func call(t *testing.T, method, path string, body any, token string, out any) int {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode < 300 {
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
		require.NoError(t, json.Unmarshal(env.Data, out), string(raw))
	}
	if resp.StatusCode >= 500 {
		t.Logf("%s %s → %d: %s", method, path, resp.StatusCode, raw)
	}
	return resp.StatusCode
}
