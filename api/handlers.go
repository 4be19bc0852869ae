package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"

	"meptrack-api/detect"
	"meptrack-api/domain"
)

// observedPayloadMaxSize bounds a scraper upload. A full parliament snapshot
// with photo and profile URLs stays well under this.
const observedPayloadMaxSize = 8 << 20

const (
	defaultChangesLimit = 50
	maxChangesLimit     = 500
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, detector Detector, log *log.Logger) {
	e.GET("/api/meps", getMeps(store))
	e.POST("/api/meps/sync", postSync(detector))
	e.POST("/api/meps/cleanup", postCleanup(detector))
	e.GET("/api/changes", getChanges(store))
	e.POST("/api/detect-changes", detectChanges(detector, log))
	e.GET("/api/detect-changes", detectChanges(detector, log))
	e.GET("/healthz", healthz(store))
}

type mepsResponse struct {
	Meps  []domain.Member `json:"meps"`
	Count int             `json:"count"`
}

type changesResponse struct {
	Changes []domain.ChangeEvent `json:"changes"`
	Count   int                  `json:"count"`
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getMeps(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		filter, err := filterFromQuery(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		meps, err := store.ListMembers(ctx, filter)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if meps == nil {
			meps = []domain.Member{}
		}
		return c.JSON(http.StatusOK, mepsResponse{Meps: meps, Count: len(meps)})
	}
}

// filterFromQuery maps the supported query parameters onto a typed filter.
// Handlers never build store query strings themselves.
func filterFromQuery(c echo.Context) (domain.Filter, error) {
	var filters []domain.Filter

	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		if s := domain.Status(status); s != domain.StatusActive && s != domain.StatusInactive {
			return nil, fmt.Errorf("invalid status %q", status)
		}
		filters = append(filters, domain.FieldEquals{Field: domain.FieldStatus, Value: status})
	}
	if country := strings.TrimSpace(c.QueryParam("country")); country != "" {
		values := splitList(country)
		if len(values) == 1 {
			filters = append(filters, domain.FieldEquals{Field: domain.FieldCountry, Value: values[0]})
		} else {
			filters = append(filters, domain.FieldIn{Field: domain.FieldCountry, Values: values})
		}
	}
	if group := strings.TrimSpace(c.QueryParam("group")); group != "" {
		filters = append(filters, domain.FieldEquals{Field: domain.FieldGroupShort, Value: group})
	}

	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	default:
		return domain.And{Filters: filters}, nil
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

func getChanges(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		limit := defaultChangesLimit
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = parsed
		}
		if limit > maxChangesLimit {
			limit = maxChangesLimit
		}
		changes, err := store.ListChangeEvents(ctx, limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if changes == nil {
			changes = []domain.ChangeEvent{}
		}
		return c.JSON(http.StatusOK, changesResponse{Changes: changes, Count: len(changes)})
	}
}

func postSync(detector Detector) echo.HandlerFunc {
	return func(c echo.Context) error {
		observed, err := decodeObserved(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(observed) == 0 {
			return c.String(http.StatusBadRequest, "no meps in payload")
		}
		stats, err := detector.SyncRoster(c.Request().Context(), observed)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, stats)
	}
}

func postCleanup(detector Detector) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := detector.CleanupDuplicates(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, stats)
	}
}

func detectChanges(detector Detector, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newDetectRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		var observed []domain.ObservedRecord
		if c.Request().Method == http.MethodPost {
			decodeStart := time.Now()
			observed, err = decodeObserved(c.Request().Body)
			metrics.ObserveDecode(time.Since(decodeStart))
			if err != nil {
				metrics.SetErrorStage("decode")
				err = c.String(http.StatusBadRequest, "invalid body")
				return err
			}
		}
		metrics.SetObservedReceived(len(observed))

		detectStart := time.Now()
		res, detectErr := detector.DetectChanges(ctx, observed)
		metrics.ObserveDetect(time.Since(detectStart))
		if detectErr != nil {
			if errors.Is(detectErr, detect.ErrCycleInProgress) {
				metrics.SetErrorStage("cycle_in_progress")
				err = c.String(http.StatusConflict, detectErr.Error())
				return err
			}
			metrics.SetErrorStage("detect")
			c.Logger().Error(detectErr)
			err = c.String(http.StatusInternalServerError, detectErr.Error())
			return err
		}
		metrics.SetMode(res.Stats.Mode)
		metrics.SetEventsLogged(res.Stats.EventsLogged)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, res)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// decodeObserved accepts either a bare array of scraped records or the
// scraper's envelope form {"meps": [...]}.
func decodeObserved(r io.Reader) ([]domain.ObservedRecord, error) {
	data, err := io.ReadAll(io.LimitReader(r, observedPayloadMaxSize))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var records []domain.ObservedRecord
		if err := sonic.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var envelope struct {
		Meps []domain.ObservedRecord `json:"meps"`
	}
	if err := sonic.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return envelope.Meps, nil
}
