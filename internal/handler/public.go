package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/perscom"
)

// PublicHandler serves the unit's public personnel listings. Listings never
// fail: when PERSCOM is down they come back empty.
type PublicHandler struct {
	Dir PersonnelReader
}

func NewPublicHandler(dir PersonnelReader) *PublicHandler {
	if dir == nil {
		panic("nil PersonnelReader passed to NewPublicHandler")
	}
	return &PublicHandler{Dir: dir}
}

// RosterEntry is a user as shown on the public roster; contact details are
// left out.
type RosterEntry struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Rank     *perscom.Rank     `json:"rank,omitempty"`
	Unit     *perscom.Unit     `json:"unit,omitempty"`
	Position *perscom.Position `json:"position,omitempty"`
	Status   *perscom.Status   `json:"status,omitempty"`
}

// Roster lists approved members with their rank, unit and position.
func (h *PublicHandler) Roster(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	users := h.Dir.Users(ctx, perscom.Include("rank", "unit", "position", "status"))
	out := make([]RosterEntry, 0, len(users))
	for _, u := range users {
		if !u.Approved {
			continue
		}
		out = append(out, RosterEntry{
			ID: u.ID, Name: u.Name,
			Rank: u.Rank, Unit: u.Unit, Position: u.Position, Status: u.Status,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

func (h *PublicHandler) Ranks(c echo.Context) error {
	return listing(c, h.Dir.Ranks)
}

func (h *PublicHandler) Units(c echo.Context) error {
	return listing(c, h.Dir.Units)
}

func (h *PublicHandler) Positions(c echo.Context) error {
	return listing(c, h.Dir.Positions)
}

func (h *PublicHandler) Awards(c echo.Context) error {
	return listing(c, h.Dir.Awards)
}

func (h *PublicHandler) Qualifications(c echo.Context) error {
	return listing(c, h.Dir.Qualifications)
}

func listing[T any](c echo.Context, list func(context.Context, ...perscom.ListOption) []T) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()
	return c.JSON(http.StatusOK, echo.Map{"items": list(ctx)})
}
