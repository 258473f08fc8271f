package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
)

// WSHandler wires a quiz-taking client into the stats pipeline over a
// websocket: answer votes, the completion event, shares, and tally reads all
// travel over one connection.
type WSHandler struct {
	tally    *app.TallyWriter
	stats    *app.StatsService
	orch     *app.Orchestrator
	clock    func() time.Time
	upgrader websocket.Upgrader
}

func NewWSHandler(tally *app.TallyWriter, stats *app.StatsService, orch *app.Orchestrator) *WSHandler {
	return &WSHandler{
		tally: tally,
		stats: stats,
		orch:  orch,
		clock: time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type votePayload struct {
	QuestionIndex int `json:"questionIndex"`
	AnswerID      int `json:"answerId"`
}

type completePayload struct {
	Score           int   `json:"score"`
	TotalQuestions  int   `json:"totalQuestions"`
	DurationSeconds int   `json:"durationSeconds"`
	Answers         []int `json:"answers"`
}

type sharePayload struct {
	Date string `json:"date"`
}

type statsPayload struct {
	Date string `json:"date"`
}

type attachPayload struct {
	UserID string `json:"userId"`
}

type completionResult struct {
	Date             string            `json:"date"`
	AlreadyCompleted bool              `json:"alreadyCompleted"`
	CurrentStreak    int               `json:"currentStreak"`
	MaxStreak        int               `json:"maxStreak"`
	TotalScore       int               `json:"totalScore"`
	QuizzesTaken     int               `json:"quizzesTaken"`
	NewBadges        []domain.Badge    `json:"newBadges"`
	Tally            domain.DailyTally `json:"tally"`
}

type statsResult struct {
	Date  string            `json:"date"`
	Tally domain.DailyTally `json:"tally"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the session message loop. A signed-in
// client passes userId; a guest passes sessionId and may attach a userId later
// to claim its pending completion.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	sessionID := r.URL.Query().Get("sessionId")
	if userID == "" && sessionID == "" {
		http.Error(w, "missing userId or sessionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		today := domain.DateKey(h.clock())

		switch inbound.Type {
		case "vote":
			var payload votePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.writeError(conn, "invalid vote payload")
				continue
			}
			// Fire-and-forget; a dropped tally never blocks the quiz flow.
			h.tally.RecordVote(today, payload.QuestionIndex, payload.AnswerID)

		case "complete":
			var payload completePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.writeError(conn, "invalid complete payload")
				continue
			}
			if payload.TotalQuestions == 0 {
				payload.TotalQuestions = domain.QuestionsPerQuiz
			}
			completion := domain.Completion{
				Date:            today,
				Score:           payload.Score,
				TotalQuestions:  payload.TotalQuestions,
				DurationSeconds: payload.DurationSeconds,
				Answers:         payload.Answers,
				CompletedAt:     h.clock(),
			}
			var result app.ReconcileResult
			var err error
			if userID != "" {
				result, err = h.orch.Complete(r.Context(), userID, completion)
			} else {
				result, err = h.orch.CompleteAnonymous(sessionID, completion)
			}
			if err != nil {
				h.writeError(conn, err.Error())
				continue
			}
			if !result.AlreadyCompleted {
				h.tally.RecordScore(today, payload.Score)
			}
			h.write(conn, "completionResult", completionResult{
				Date:             today,
				AlreadyCompleted: result.AlreadyCompleted,
				CurrentStreak:    result.Profile.CurrentStreak,
				MaxStreak:        result.Profile.MaxStreak,
				TotalScore:       result.Profile.TotalScore,
				QuizzesTaken:     result.Profile.QuizzesTaken,
				NewBadges:        result.NewBadges,
				Tally:            h.stats.FetchStats(r.Context(), today),
			})

		case "share":
			if userID == "" {
				h.writeError(conn, "sign in to share")
				continue
			}
			var payload sharePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Date == "" {
				payload.Date = today
			}
			newBadges, err := h.orch.MarkShared(r.Context(), userID, payload.Date)
			if err != nil {
				h.writeError(conn, err.Error())
				continue
			}
			h.write(conn, "shareResult", outboundBadges(newBadges))

		case "stats":
			var payload statsPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Date == "" {
				payload.Date = today
			}
			h.write(conn, "stats", statsResult{
				Date:  payload.Date,
				Tally: h.stats.FetchStats(r.Context(), payload.Date),
			})

		case "attach":
			var payload attachPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.UserID == "" {
				h.writeError(conn, "invalid attach payload")
				continue
			}
			if sessionID == "" {
				h.writeError(conn, "no guest session to attach")
				continue
			}
			profile, err := h.orch.Attach(r.Context(), sessionID, payload.UserID)
			if err != nil {
				h.writeError(conn, err.Error())
				continue
			}
			userID = payload.UserID
			h.write(conn, "attached", profile)

		default:
			h.writeError(conn, "unsupported message type")
		}
	}
}

func outboundBadges(badges []domain.Badge) []domain.Badge {
	if badges == nil {
		return []domain.Badge{}
	}
	return badges
}

func (h *WSHandler) write(conn *websocket.Conn, msgType string, payload any) {
	if err := conn.WriteJSON(outboundMessage[any]{Type: msgType, Payload: payload}); err != nil {
		log.Printf("ws write error: %v", err)
	}
}

func (h *WSHandler) writeError(conn *websocket.Conn, message string) {
	h.write(conn, "error", errorPayload{Message: message})
}
