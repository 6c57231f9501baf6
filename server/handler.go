package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tluyben/crmflow/backend"
	"github.com/tluyben/crmflow/catalog"
	"github.com/tluyben/crmflow/flow"
	"github.com/tluyben/crmflow/flows"
	"go.uber.org/zap"
)

// statusClientClosedRequest is recorded when the caller went away before the
// flow finished. Nothing is written to the body.
const statusClientClosedRequest = 499

// FlowHandler serves flow listings and executions.
type FlowHandler struct {
	catalog  *catalog.Catalog
	executor *flow.Executor
	service  *flows.Service
	logger   *zap.Logger
}

func NewFlowHandler(cat *catalog.Catalog, executor *flow.Executor, service *flows.Service, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{catalog: cat, executor: executor, service: service, logger: logger}
}

// List returns every registered flow.
// GET /api/flows
func (h *FlowHandler) List(c *gin.Context) {
	specs := h.catalog.Specs()
	out := make([]gin.H, 0, len(specs))
	for _, s := range specs {
		out = append(out, gin.H{"name": s.Name(), "description": s.Description(), "model": s.Model()})
	}
	c.JSON(http.StatusOK, out)
}

// Get describes one flow's schemas.
// GET /api/flows/:name
func (h *FlowHandler) Get(c *gin.Context) {
	spec, ok := h.catalog.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}
	c.JSON(http.StatusOK, spec.Describe())
}

// Execute runs a flow with the request body as input.
// POST /api/flows/:name/execute
func (h *FlowHandler) Execute(c *gin.Context) {
	spec, ok := h.catalog.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	output, err := h.executor.Execute(c.Request.Context(), spec, input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": output})
}

// SummarizeCall POST /api/calls/summarize
func (h *FlowHandler) SummarizeCall(c *gin.Context) {
	var in flows.CallSummaryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.service.SummarizeCall(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// EnhanceScript POST /api/scripts/enhance
func (h *FlowHandler) EnhanceScript(c *gin.Context) {
	var in flows.ScriptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.service.EnhanceScript(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ComposeMultiChannelMessage POST /api/messages/compose
func (h *FlowHandler) ComposeMultiChannelMessage(c *gin.Context) {
	var in flows.MultiChannelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.service.ComposeMultiChannelMessage(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps flow and backend errors to responses. Raw model text is
// never sent to the client.
func (h *FlowHandler) writeError(c *gin.Context, err error) {
	var validation *flow.ValidationError
	var response *flow.ModelResponseError
	var unavailable *backend.UnavailableError
	var timeout *backend.TimeoutError

	switch {
	case errors.As(err, &validation) && validation.Stage == flow.StageInput:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "invalid input",
			"stage":      validation.Stage,
			"violations": validation.Violations,
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "the model returned an answer that does not match the expected format",
			"stage":      validation.Stage,
			"violations": validation.Violations,
		})
	case errors.As(err, &response):
		h.logger.Warn("unreadable model response", zap.String("flow", response.Flow), zap.String("raw", response.Raw))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "the model returned an unreadable answer",
			"stage": response.Stage,
		})
	case errors.Is(err, context.Canceled):
		h.logger.Debug("client went away", zap.String("path", c.FullPath()), zap.Error(err))
		c.Status(statusClientClosedRequest)
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "the model did not answer in time", "retryable": true})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "the model service is unavailable", "retryable": true})
	default:
		h.logger.Error("flow execution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
