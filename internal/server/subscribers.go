package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/subtrack/internal/providers/pdf"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
)

const paidAtLayout = "2006-01-02 15:04"

func (s *Server) RegisterSubscriber(c *gin.Context) {
	fields, err := bindFields(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscribers.Register(c.Request.Context(), fields)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) FindSubscribers(c *gin.Context) {
	var query struct {
		Q string `form:"q"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscribers.Find(c.Request.Context(), query.Q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriber(c *gin.Context) {
	resp, err := s.subscribers.Get(c.Request.Context(), c.Param("customer_no"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EditSubscriber(c *gin.Context) {
	fields, err := bindFields(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscribers.Edit(c.Request.Context(), c.Param("customer_no"), fields)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetSubscriberStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status, ok := subdomain.ParseStatus(req.Status)
	if !ok {
		AbortWithError(c, newValidationError("status", "invalid_status", "must be active, expired or suspended"))
		return
	}

	resp, err := s.subscribers.SetStatus(c.Request.Context(), c.Param("customer_no"), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenewSubscriber(c *gin.Context) {
	var req subdomain.RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CustomerNo = c.Param("customer_no")

	resp, err := s.subscribers.Renew(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriberPayments(c *gin.Context) {
	resp, err := s.subscribers.Payments(c.Request.Context(), c.Param("customer_no"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderStatement(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.subscribers.Get(ctx, c.Param("customer_no"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.subscribers.Payments(ctx, sub.CustomerNo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.statements.GenerateStatement(ctx, s.statementData(sub, payments))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="statement-`+sub.CustomerNo+`.pdf"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, nil)
}

func (s *Server) statementData(sub subdomain.Subscriber, payments []subdomain.Payment) pdf.StatementData {
	data := pdf.StatementData{
		Issuer:        s.cfg.AppName,
		GeneratedOn:   s.subscribers.Today().String(),
		CustomerNo:    sub.CustomerNo,
		Name:          sub.Name,
		Plan:          sub.Plan,
		ProfilesCount: sub.ProfilesCount,
		StartDate:     sub.StartDate.String(),
		EndDate:       sub.EndDate.String(),
		Status:        string(sub.Status),
		Note:          sub.Note,
		AmountPaid:    sub.AmountPaid,
	}
	if sub.ContactHandle != nil {
		data.Contact = *sub.ContactHandle
	}
	for _, p := range payments {
		paidAt := p.PaidAt
		if s.cfg.Location != nil {
			paidAt = paidAt.In(s.cfg.Location)
		}
		data.Payments = append(data.Payments, pdf.StatementPayment{
			PaidAt:    paidAt.Format(paidAtLayout),
			Method:    p.Method,
			Reference: p.Reference,
			Amount:    p.Amount,
		})
	}
	return data
}

func (s *Server) ListDue(c *gin.Context) {
	days, err := parseOptionalInt(c.Query("days"))
	if err != nil || (days != nil && (*days < 0 || *days > maxDueDays)) {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be between 0 and 366"))
		return
	}
	on, err := parseOptionalDate(c.Query("on"))
	if err != nil {
		AbortWithError(c, newValidationError("on", "invalid_on", "invalid date"))
		return
	}
	if days != nil && on != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "days and on are mutually exclusive"))
		return
	}

	ctx := c.Request.Context()
	var resp []subdomain.Subscriber
	if on != nil {
		resp, err = s.subscribers.ListDueOn(ctx, *on)
	} else {
		within := s.cfg.SweepLeadDays
		if days != nil {
			within = *days
		}
		resp, err = s.subscribers.ListDueSoon(ctx, within)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TriggerSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	report, err := s.scheduler.Sweep(c.Request.Context())
	if err != nil && report.Date.IsZero() {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"date":      report.Date.String(),
		"lead_days": report.LeadDays,
		"due_soon":  report.DueSoon,
		"due_today": report.DueToday,
		"text":      report.Text(),
		"delivered": err == nil,
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func bindFields(c *gin.Context) (subdomain.Fields, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		return nil, invalidRequestError()
	}
	if body == nil {
		return nil, invalidRequestError()
	}
	fields, err := fieldsFromJSON(body)
	if err != nil {
		return nil, err
	}
	for key := range fields {
		if strings.TrimSpace(key) == "" {
			return nil, invalidRequestError()
		}
	}
	return fields, nil
}
