package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stacker/internal/handlers"
	"stacker/internal/orders"
	"stacker/internal/stack"
	"stacker/internal/store/eventlog"
)

// EventSource is the queryable transition journal.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]eventlog.Record, error)
}

// Router serves stack queries and operator actions.
type Router struct {
	Stacks     *stack.Set
	Rolls      *handlers.RollTracker
	Reconciler *handlers.Reconciler
	Canceller  *handlers.Canceller
	Events     EventSource
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/orders/:level", r.handleListOrders)
	group.GET("/orders/:level/:id", r.handleGetOrder)
	group.POST("/orders/:level/:id/cancel", r.handleCancelOrder)
	group.GET("/instruments/:code/orders", r.handleInstrumentOrders)
	group.GET("/rolls", r.handleRolls)
	group.GET("/breaks", r.handleBreaks)
	group.GET("/events", r.handleEvents)
}

func (r *Router) stackByParam(c *gin.Context) *stack.Stack {
	level := orders.Level(strings.ToLower(strings.TrimSpace(c.Param("level"))))
	st := r.Stacks.ByLevel(level)
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown stack level"})
	}
	return st
}

func (r *Router) handleListOrders(c *gin.Context) {
	st := r.stackByParam(c)
	if st == nil {
		return
	}
	if c.Query("archived") == "1" {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		c.JSON(http.StatusOK, gin.H{"orders": toViews(st.ListArchived(limit))})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": toViews(st.ListActive())})
}

func (r *Router) handleGetOrder(c *gin.Context) {
	st := r.stackByParam(c)
	if st == nil {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	o, err := st.GetOrder(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toView(o))
}

func (r *Router) handleCancelOrder(c *gin.Context) {
	if r.Canceller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cancel not available"})
		return
	}
	level := orders.Level(strings.ToLower(strings.TrimSpace(c.Param("level"))))
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	if err := r.Canceller.Cancel(c.Request.Context(), level, id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, orders.ErrMissingOrder) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "id": id})
}

func (r *Router) handleInstrumentOrders(c *gin.Context) {
	code := c.Param("code")
	c.JSON(http.StatusOK, gin.H{
		"instrument": toViews(r.Stacks.Instrument.ListByInstrument(code)),
		"contract":   toViews(r.Stacks.Contract.ListByInstrument(code)),
		"broker":     toViews(r.Stacks.Broker.ListByInstrument(code)),
	})
}

func (r *Router) handleRolls(c *gin.Context) {
	if r.Rolls == nil {
		c.JSON(http.StatusOK, gin.H{"rolls": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rolls": r.Rolls.States()})
}

func (r *Router) handleBreaks(c *gin.Context) {
	if r.Reconciler == nil {
		c.JSON(http.StatusOK, gin.H{"breaks": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breaks": toBreakViews(r.Reconciler.Breaks())})
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.Events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := r.Events.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
