package httpapi

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"daybrief/internal/assistant"
	"daybrief/internal/news"
	"daybrief/internal/prefs"
	"daybrief/internal/report"
	"daybrief/internal/tasks"
)

var validate = validator.New()

// ErrorHandler renders every handler error as a uniform JSON envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
}

// Composer builds the morning report text.
type Composer interface {
	Compose(ctx context.Context, userID string, opts report.Options) (string, error)
}

// Speaker renders text to audio.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// StudyHelper answers questions and generates quizzes.
type StudyHelper interface {
	Available() bool
	Ask(ctx context.Context, question, level, format string) (string, error)
	Quiz(ctx context.Context, notes, difficulty string) ([]assistant.QuizQuestion, error)
}

// HeadlineSearcher serves the standalone news endpoints.
type HeadlineSearcher interface {
	Search(ctx context.Context, topic string, limit int) ([]news.Article, error)
}

// Deps bundles everything the handlers need.
type Deps struct {
	Prefs    prefs.Store
	Composer Composer
	Speaker  Speaker
	Study    StudyHelper
	News     HeadlineSearcher
	Tasks    *tasks.Store
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/report/morning", d.morningReport)
	app.Get("/report/morning/speak", d.morningSpeak)

	app.Get("/prefs/news", d.getNewsPrefs)
	app.Post("/prefs/news", d.postNewsPrefs)
	app.Delete("/prefs/news/:topic", d.deleteNewsTopic)
	app.Get("/prefs/home", d.getHomePrefs)
	app.Post("/prefs/home", d.postHomePrefs)
	app.Get("/prefs/calendar", d.getCalendarPrefs)
	app.Post("/prefs/calendar", d.postCalendarPrefs)

	app.Post("/study/ask", d.studyAsk)
	app.Post("/study/quiz", d.studyQuiz)

	app.Get("/news", d.searchNews)
	app.Get("/news/for-me", d.newsForMe)

	app.Post("/goals", d.createGoal)
	app.Post("/tasks", d.createTask)
	app.Get("/tasks/priorities", d.taskPriorities)
	app.Get("/metrics/weekly", d.weeklyMetrics)
}

func userParam(c *fiber.Ctx) string {
	if u := c.Query("user"); u != "" {
		return u
	}
	return prefs.DefaultUserID
}

// ---- report ----

type reportQuery struct {
	Smart bool
	Per   int `validate:"min=1,max=5"`
	Lat   *float64
	Lon   *float64
	TZ    string
}

func parseReportQuery(c *fiber.Ctx) (reportQuery, error) {
	q := reportQuery{
		Smart: c.QueryBool("smart", false),
		Per:   c.QueryInt("per", report.DefaultHeadlinesPerTopic),
		TZ:    c.Query("tz"),
	}

	for _, coord := range []struct {
		name string
		dst  **float64
	}{{"lat", &q.Lat}, {"lon", &q.Lon}} {
		raw := c.Query(coord.name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, errors.New("invalid " + coord.name)
		}
		*coord.dst = &f
	}
	if (q.Lat == nil) != (q.Lon == nil) {
		return q, errors.New("lat and lon must be provided together")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func (d Deps) composeFromQuery(c *fiber.Ctx) (string, error) {
	q, err := parseReportQuery(c)
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	text, err := d.Composer.Compose(c.Context(), userParam(c), report.Options{
		Lat:      q.Lat,
		Lon:      q.Lon,
		TZ:       q.TZ,
		PerTopic: q.Per,
		Smart:    q.Smart,
	})
	if err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, "failed to compose report")
	}
	return text, nil
}

func (d Deps) morningReport(c *fiber.Ctx) error {
	text, err := d.composeFromQuery(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"text": text})
}

func (d Deps) morningSpeak(c *fiber.Ctx) error {
	text, err := d.composeFromQuery(c)
	if err != nil {
		return err
	}

	audio, err := d.Speaker.Synthesize(c.Context(), text)
	if errors.Is(err, assistant.ErrNotConfigured) {
		return fiber.NewError(fiber.StatusBadRequest, "Speech synthesis requires OPENAI_API_KEY.")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "speech synthesis failed")
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="morning.mp3"`)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(audio)
}

// ---- preferences: news topics ----

func (d Deps) getNewsPrefs(c *fiber.Ctx) error {
	p, err := d.Prefs.Load(c.Context(), userParam(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}
	return c.JSON(fiber.Map{"topics": p.Topics})
}

type newsPrefsBody struct {
	Topic  *string   `json:"topic"`
	Topics *[]string `json:"topics"`
}

func (d Deps) postNewsPrefs(c *fiber.Ctx) error {
	var body newsPrefsBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	userID := userParam(c)

	p, err := d.Prefs.Load(c.Context(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}

	switch {
	case body.Topic != nil:
		topics, err := prefs.AddTopic(p.Topics, *body.Topic)
		if errors.Is(err, prefs.ErrEmptyTopic) {
			return fiber.NewError(fiber.StatusBadRequest, "Empty topic.")
		}
		if err := d.Prefs.SaveTopics(c.Context(), userID, topics); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
		}
		return c.JSON(fiber.Map{"ok": true, "mode": "added", "topics": topics})

	case body.Topics != nil:
		topics := prefs.DedupeTopics(*body.Topics)
		if err := d.Prefs.SaveTopics(c.Context(), userID, topics); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
		}
		return c.JSON(fiber.Map{"ok": true, "mode": "replaced", "topics": topics})

	default:
		return fiber.NewError(fiber.StatusBadRequest, "Provide 'topic' or 'topics' list.")
	}
}

func (d Deps) deleteNewsTopic(c *fiber.Ctx) error {
	topic, err := url.PathUnescape(c.Params("topic"))
	if err != nil || strings.TrimSpace(topic) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "invalid topic")
	}
	userID := userParam(c)

	p, err := d.Prefs.Load(c.Context(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}

	remain := prefs.RemoveTopic(p.Topics, topic)
	if err := d.Prefs.SaveTopics(c.Context(), userID, remain); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
	}
	return c.JSON(fiber.Map{"ok": true, "removed": topic, "topics": remain})
}

// ---- preferences: home location ----

type homeBody struct {
	Zip   *string  `json:"zip"`
	City  *string  `json:"city"`
	TZ    *string  `json:"tz"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Units *string  `json:"units" validate:"omitempty,oneof=imperial metric"`
}

func (d Deps) getHomePrefs(c *fiber.Ctx) error {
	p, err := d.Prefs.Load(c.Context(), userParam(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}
	return c.JSON(p.Home)
}

func (d Deps) postHomePrefs(c *fiber.Ctx) error {
	var body homeBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if body.Units != nil {
		lower := strings.ToLower(*body.Units)
		body.Units = &lower
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if body.TZ != nil && *body.TZ != "" {
		if _, err := time.LoadLocation(*body.TZ); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unknown timezone")
		}
	}

	userID := userParam(c)
	p, err := d.Prefs.Load(c.Context(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}

	in := prefs.HomeLocation{Lat: body.Lat, Lon: body.Lon}
	if body.Zip != nil {
		in.Zip = *body.Zip
	}
	if body.City != nil {
		in.City = *body.City
	}
	if body.TZ != nil {
		in.TZ = *body.TZ
	}
	if body.Units != nil {
		in.Units = *body.Units
	}

	merged := prefs.MergeHome(p.Home, in)
	if (merged.Lat == nil) != (merged.Lon == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon must be provided together")
	}

	if err := d.Prefs.SaveHome(c.Context(), userID, merged); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
	}
	return c.JSON(fiber.Map{"ok": true, "home": merged})
}

// ---- preferences: calendar feed ----

type calendarBody struct {
	ICSURL string `json:"ics_url" validate:"required,url"`
}

func (d Deps) getCalendarPrefs(c *fiber.Ctx) error {
	p, err := d.Prefs.Load(c.Context(), userParam(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}
	return c.JSON(fiber.Map{
		"configured": p.Calendar.ICSURL != "",
		"ics_masked": prefs.MaskICSURL(p.Calendar.ICSURL),
	})
}

func (d Deps) postCalendarPrefs(c *fiber.Ctx) error {
	var body calendarBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := d.Prefs.SaveCalendar(c.Context(), userParam(c), prefs.CalendarFeed{ICSURL: body.ICSURL}); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
	}
	return c.JSON(fiber.Map{
		"ok":       true,
		"calendar": fiber.Map{"ics_masked": prefs.MaskICSURL(body.ICSURL)},
	})
}

// ---- study ----

type askBody struct {
	Question string `json:"question" validate:"required"`
	Level    string `json:"level"`
	Format   string `json:"format"`
}

func (d Deps) studyAsk(c *fiber.Ctx) error {
	var body askBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if !d.Study.Available() {
		return fiber.NewError(fiber.StatusInternalServerError,
			"OpenAI key not configured. Set environment variable OPENAI_API_KEY.")
	}

	answer, err := d.Study.Ask(c.Context(), body.Question, body.Level, body.Format)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "study assistant failed")
	}
	return c.JSON(fiber.Map{"answer": answer})
}

type quizBody struct {
	Notes      string `json:"notes" validate:"required"`
	Difficulty string `json:"difficulty"`
}

func (d Deps) studyQuiz(c *fiber.Ctx) error {
	var body quizBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if body.Difficulty == "" {
		body.Difficulty = "mixed"
	}

	questions, err := d.Study.Quiz(c.Context(), body.Notes, body.Difficulty)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "quiz generation failed")
	}
	return c.JSON(fiber.Map{"questions": questions})
}

// ---- standalone news ----

type newsQuery struct {
	Topic string `validate:"required,min=2,max=60"`
	Limit int    `validate:"min=1,max=5"`
}

func (d Deps) searchNews(c *fiber.Ctx) error {
	q := newsQuery{Topic: c.Query("topic"), Limit: c.QueryInt("limit", news.MaxHeadlines)}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	articles, err := d.News.Search(c.Context(), q.Topic, q.Limit)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "headline source unavailable")
	}
	return c.JSON(fiber.Map{
		"topic":    q.Topic,
		"count":    len(articles),
		"articles": articles,
	})
}

func (d Deps) newsForMe(c *fiber.Ctx) error {
	per := c.QueryInt("per", report.DefaultHeadlinesPerTopic)
	if per < 1 || per > news.MaxHeadlines {
		return fiber.NewError(fiber.StatusBadRequest, "per must be between 1 and 5")
	}

	p, err := d.Prefs.Load(c.Context(), userParam(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read preferences")
	}

	type bucket struct {
		Topic    string         `json:"topic"`
		Articles []news.Article `json:"articles"`
	}
	buckets := make([]bucket, 0, len(p.Topics))
	for _, topic := range p.Topics {
		// Best effort: a failing topic yields an empty bucket.
		articles, _ := d.News.Search(c.Context(), topic, per)
		if articles == nil {
			articles = []news.Article{}
		}
		buckets = append(buckets, bucket{Topic: topic, Articles: articles})
	}
	return c.JSON(fiber.Map{"topics": p.Topics, "buckets": buckets})
}

// ---- goals, tasks, metrics ----

type goalBody struct {
	Level        string   `json:"level" validate:"required,oneof=year month week day"`
	Title        string   `json:"title" validate:"required"`
	Metric       string   `json:"metric"`
	Target       *float64 `json:"target"`
	Deadline     string   `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	ParentGoalID *int64   `json:"parent_goal_id"`
	Weight       float64  `json:"weight"`
}

func (d Deps) createGoal(c *fiber.Ctx) error {
	var body goalBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	g := tasks.Goal{
		ParentGoalID: body.ParentGoalID,
		Level:        body.Level,
		Title:        body.Title,
		Metric:       body.Metric,
		Target:       body.Target,
		Deadline:     body.Deadline,
		Weight:       body.Weight,
	}
	if err := d.Tasks.CreateGoal(c.Context(), userParam(c), &g); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save goal")
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

type taskBody struct {
	Title       string `json:"title" validate:"required"`
	Due         string `json:"due" validate:"omitempty,datetime=2006-01-02"`
	EstimateMin *int   `json:"estimate_min"`
	GoalID      *int64 `json:"goal_id"`
}

func (d Deps) createTask(c *fiber.Ctx) error {
	var body taskBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	t := tasks.Task{
		GoalID:      body.GoalID,
		Title:       body.Title,
		Due:         body.Due,
		EstimateMin: body.EstimateMin,
	}
	if err := d.Tasks.CreateTask(c.Context(), userParam(c), &t); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save task")
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (d Deps) taskPriorities(c *fiber.Ctx) error {
	priorities, err := d.Tasks.TopPriorities(c.Context(), userParam(c), 3)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read tasks")
	}
	return c.JSON(fiber.Map{"priorities": priorities})
}

func (d Deps) weeklyMetrics(c *fiber.Ctx) error {
	m, err := d.Tasks.WeeklyMetrics(c.Context(), userParam(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read tasks")
	}
	m.CompletionRatio = math.Round(m.CompletionRatio*100) / 100
	return c.JSON(m)
}
