package appointment

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/websocket"
	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

type Handler struct {
	svc        *Service
	calendar   *Calendar
	insights   *Insights
	dispatcher *Dispatcher
	hub        *websocket.Hub
	ws         *websocket.Handler
	logger     zerolog.Logger
}

func NewHandler(svc *Service, calendar *Calendar, insights *Insights, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, calendar: calendar, insights: insights, logger: logger}
}

// EnableNotifications serves dispatcher notifications over websocket connections.
func (h *Handler) EnableNotifications(d *Dispatcher, hub *websocket.Hub, ws *websocket.Handler) {
	h.dispatcher, h.hub, h.ws = d, hub, ws
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := auth.RequireRole(auth.RoleDoctor)
	patient := auth.RequireRole(auth.RolePatient)

	api.POST("/appointments", h.Book, patient)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/accept", h.Accept, doctor)
	api.POST("/appointments/:id/decline", h.Decline, doctor)
	api.POST("/appointments/:id/start-call", h.StartCall, doctor)
	api.POST("/appointments/:id/conclude", h.Conclude, doctor)
	api.POST("/appointments/:id/reschedule", h.Reschedule, patient)
	api.POST("/appointments/:id/cancel", h.Cancel, patient)
	api.POST("/appointments/:id/join", h.Join)

	self := auth.RequireSelf("id")
	api.GET("/doctors/:id/appointments", h.ListByDoctor, doctor, self)
	api.GET("/doctors/:id/calendar", h.DoctorCalendar, doctor, self)
	api.GET("/doctors/:id/stats", h.Stats, doctor, self)
	api.GET("/doctors/:id/patients", h.Patients, doctor, self)
	api.GET("/doctors/:id/history", h.History, doctor, self)

	api.GET("/patients/:id/appointments", h.ListByPatient, self)
	api.GET("/patients/:id/calendar", h.PatientCalendar, self)

	api.GET("/ws/notifications", h.Notifications)
}

// callerFrom maps the authenticated identity to a lifecycle actor.
func callerFrom(c echo.Context) Caller {
	ctx := c.Request().Context()
	caller := Caller{UserID: auth.UserIDFromContext(ctx), Actor: ActorPatient}
	if auth.IsAdmin(ctx) {
		caller.Actor = ActorAdmin
		return caller
	}
	for _, r := range auth.RolesFromContext(ctx) {
		if r == auth.RoleDoctor {
			caller.Actor = ActorDoctor
		}
	}
	return caller
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type bookRequest struct {
	DoctorID        string    `json:"doctorId"`
	PatientID       string    `json:"patientId"`
	AppointmentDate time.Time `json:"appointmentDate"`
	ChiefComplaint  string    `json:"chiefComplaint"`
	Type            Type      `json:"type"`
	Fee             *float64  `json:"fee"`
}

func isMultipart(c echo.Context) bool {
	mt, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	return mt == echo.MIMEMultipartForm
}

// bookInput reads a JSON body, or a multipart form with an optional
// "document" file part.
func bookInput(c echo.Context) (BookInput, func(), error) {
	noop := func() {}
	if !isMultipart(c) {
		var req bookRequest
		if err := c.Bind(&req); err != nil {
			return BookInput{}, noop, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
		}
		return BookInput{
			DoctorID:       req.DoctorID,
			PatientID:      req.PatientID,
			Date:           req.AppointmentDate,
			ChiefComplaint: req.ChiefComplaint,
			Type:           req.Type,
			Fee:            req.Fee,
		}, noop, nil
	}

	in := BookInput{
		DoctorID:       c.FormValue("doctorId"),
		PatientID:      c.FormValue("patientId"),
		ChiefComplaint: c.FormValue("chiefComplaint"),
		Type:           Type(c.FormValue("type")),
	}
	if v := c.FormValue("appointmentDate"); v != "" {
		date, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return BookInput{}, noop, echo.NewHTTPError(http.StatusBadRequest, "appointmentDate must be RFC 3339")
		}
		in.Date = date
	}
	if v := c.FormValue("fee"); v != "" {
		fee, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return BookInput{}, noop, echo.NewHTTPError(http.StatusBadRequest, "fee must be a number")
		}
		in.Fee = &fee
	}

	fh, err := c.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return in, noop, nil
	}
	if err != nil {
		return BookInput{}, noop, echo.NewHTTPError(http.StatusBadRequest, "unreadable document")
	}
	f, err := fh.Open()
	if err != nil {
		return BookInput{}, noop, echo.NewHTTPError(http.StatusBadRequest, "unreadable document")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	in.Document = &Document{FileName: fh.Filename, ContentType: contentType, Content: f}
	return in, func() { f.Close() }, nil
}

func (h *Handler) Book(c echo.Context) error {
	in, closeDoc, err := bookInput(c)
	if err != nil {
		return err
	}
	defer closeDoc()

	a, err := h.svc.Book(c.Request().Context(), callerFrom(c), in)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	v, err := h.svc.Get(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Accept(c echo.Context) error {
	a, err := h.svc.Accept(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Decline(c echo.Context) error {
	a, err := h.svc.Decline(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) StartCall(c echo.Context) error {
	a, err := h.svc.StartCall(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	room, _ := a.RoomID()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"roomId":      room,
		"appointment": a,
	})
}

func (h *Handler) Conclude(c echo.Context) error {
	var outcome Outcome
	if err := c.Bind(&outcome); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Conclude(c.Request().Context(), callerFrom(c), c.Param("id"), outcome)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleRequest struct {
	Date time.Time `json:"date"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), callerFrom(c), c.Param("id"), req.Date)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	a, err := h.svc.Cancel(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Join(c echo.Context) error {
	a, err := h.svc.MarkJoined(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be RFC 3339")
	}
	return &t, nil
}

func parseQuery(c echo.Context) (Query, error) {
	var q Query
	statuses, err := ParseStatuses(c.QueryParams()["status"])
	if err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q.Statuses = statuses

	if q.From, err = parseTimeParam(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = parseTimeParam(c, "to"); err != nil {
		return q, err
	}
	if v := c.QueryParam("bucket"); v != "" {
		if q.Bucket, err = ParseBucket(v); err != nil {
			return q, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "asc":
	case "desc":
		q.Order = OrderDateDesc
	default:
		return q, echo.NewHTTPError(http.StatusBadRequest, "order must be asc or desc")
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return err
	}
	views, err := h.svc.ListByDoctor(c.Request().Context(), callerFrom(c), c.Param("id"), q)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return err
	}
	views, err := h.svc.ListByPatient(c.Request().Context(), callerFrom(c), c.Param("id"), q)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, views)
}

func parseLocation(c echo.Context) (*time.Location, error) {
	tz := c.QueryParam("tz")
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unknown time zone "+tz)
	}
	return loc, nil
}

func (h *Handler) DoctorCalendar(c echo.Context) error {
	return h.calendarDays(c, ActorDoctor)
}

func (h *Handler) PatientCalendar(c echo.Context) error {
	return h.calendarDays(c, ActorPatient)
}

func (h *Handler) calendarDays(c echo.Context, actor Actor) error {
	loc, err := parseLocation(c)
	if err != nil {
		return err
	}
	now := h.svc.now().In(loc)
	year, month := now.Year(), now.Month()
	if v := c.QueryParam("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "year must be an integer")
		}
	}
	if v := c.QueryParam("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "month must be an integer")
		}
		month = time.Month(m)
	}

	days, err := h.calendar.Days(c.Request().Context(), Participant{ID: c.Param("id"), Actor: actor}, year, month, loc)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"year":  year,
		"month": int(month),
		"days":  days,
	})
}

func (h *Handler) Stats(c echo.Context) error {
	loc, err := parseLocation(c)
	if err != nil {
		return err
	}
	stats, err := h.insights.DashboardStats(c.Request().Context(), c.Param("id"), loc)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Patients(c echo.Context) error {
	items, err := h.insights.DoctorPatients(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) History(c echo.Context) error {
	statuses, err := ParseStatuses(c.QueryParams()["status"])
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	views, total, err := h.insights.ConsultationHistory(c.Request().Context(), c.Param("id"), statuses, pg)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

// Notifications upgrades to a websocket and streams the caller's
// notifications until the connection closes. The watch query parameter
// overrides the default watch-set.
func (h *Handler) Notifications(c echo.Context) error {
	if h.dispatcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "notifications are not enabled")
	}
	caller := callerFrom(c)
	if caller.Actor == ActorAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "notifications are for doctors and patients")
	}
	statuses, err := ParseStatuses(c.QueryParams()["watch"])
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	client, connCtx, err := h.ws.Attach(c, caller.UserID)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	sub, err := h.dispatcher.Subscribe(connCtx, Watch{UserID: caller.UserID, Actor: caller.Actor, Statuses: statuses})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("subscribe notifications")
		h.hub.Unregister(client)
		return nil
	}
	defer sub.Close()

	for n := range sub.C {
		event, err := websocket.NewEvent(EventNotification, websocket.UserTopic(caller.UserID), n.AppointmentID, n)
		if err != nil {
			h.logger.Error().Err(err).Msg("marshal notification")
			continue
		}
		if !h.hub.SendTo(client, event) {
			h.logger.Warn().Str("client_id", client.ID).Msg("notification dropped")
		}
	}
	return nil
}
