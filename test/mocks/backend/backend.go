// Package backend provides an in-process fake of the Breeze backend and a
// notification token signer for tests.
package backend

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ============================================================================
// Token Signer
// ============================================================================

// Signer mints ES256 notification tokens
type Signer struct {
	Key *ecdsa.PrivateKey
}

// NewSigner creates a signer with a fresh P-256 key
func NewSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Signer{Key: key}, nil
}

// PublicKey returns the verification key
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.Key.PublicKey
}

// Sign signs arbitrary claims
func (s *Signer) Sign(claims map[string]interface{}) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(claims)).SignedString(s.Key)
}

// Notification signs a notification for a payment page
func (s *Signer) Notification(paymentPageID, productID, status string) (string, error) {
	return s.Sign(map[string]interface{}{
		"successPaymentId": "sp_" + paymentPageID,
		"paymentPageId":    paymentPageID,
		"paymentAmount":    "4.99",
		"productId":        productID,
		"productType":      "consumable",
		"status":           status,
	})
}

// ============================================================================
// Fake Backend
// ============================================================================

// Page is a payment page created through the fake backend
type Page struct {
	ID                string
	ProductID         string
	ProductType       string
	RedirectURL       string
	ClientReferenceID string
	Status            string
	PurchaseDate      time.Time
}

// Request records what a client sent
type Request struct {
	Method    string
	Path      string
	APIKey    string
	UserID    string
	UserEmail string
	LiveMode  string
	Query     string
}

// Server is a fake Breeze backend
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	pages         map[string]*Page
	order         []string
	products      []map[string]interface{}
	requests      []Request
	nextID        int
	rateLimitLeft int
	failPolls     bool
}

// NewServer starts a fake backend. Call Close when done.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{pages: make(map[string]*Page)}

	r := gin.New()
	r.Use(s.record)
	r.POST("/iap/client/payment_pages", s.createPaymentPage)
	r.GET("/iap/client/transactions/:id", s.getTransaction)
	r.GET("/iap/client/entitlements/current", s.currentEntitlements)
	r.GET("/iap/client/entitlements", s.entitlements)
	r.GET("/iap/client/products", s.listProducts)

	s.Server = httptest.NewServer(r)
	return s
}

// SetStatus sets the transaction status reported for a page
func (s *Server) SetStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[id]; ok {
		p.Status = status
		if status == "purchased" && p.PurchaseDate.IsZero() {
			p.PurchaseDate = time.Now().UTC().Truncate(time.Second)
		}
	}
}

// AddPage registers a page that was not created through the API
func (s *Server) AddPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.pages[p.ID] = &cp
	s.order = append(s.order, p.ID)
}

// SetProducts sets the catalog
func (s *Server) SetProducts(products []map[string]interface{}) {
	s.mu.Lock()
	s.products = products
	s.mu.Unlock()
}

// RateLimit makes the next n requests fail with 429
func (s *Server) RateLimit(n int) {
	s.mu.Lock()
	s.rateLimitLeft = n
	s.mu.Unlock()
}

// FailPolls makes transaction lookups fail with 503
func (s *Server) FailPolls(fail bool) {
	s.mu.Lock()
	s.failPolls = fail
	s.mu.Unlock()
}

// Pages returns the created pages in creation order
func (s *Server) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Page, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.pages[id])
	}
	return out
}

// Requests returns every recorded request
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		APIKey:    c.GetHeader("x-api-key"),
		UserID:    c.GetHeader("x-user-unique-id"),
		UserEmail: c.GetHeader("x-user-email"),
		LiveMode:  c.Query("livemode"),
		Query:     c.Request.URL.RawQuery,
	})
	limited := s.rateLimitLeft > 0
	if limited {
		s.rateLimitLeft--
	}
	s.mu.Unlock()

	if c.GetHeader("x-api-key") == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	if limited {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}
	c.Next()
}

type createPageRequest struct {
	ProductID         string `json:"productId" binding:"required"`
	ProductType       string `json:"productType"`
	Quantity          int    `json:"quantity"`
	RedirectURL       string `json:"redirectUrl" binding:"required"`
	ClientReferenceID string `json:"clientReferenceId"`
}

func (s *Server) createPaymentPage(c *gin.Context) {
	var req createPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("pp_%d", s.nextID)
	s.pages[id] = &Page{
		ID:                id,
		ProductID:         req.ProductID,
		ProductType:       req.ProductType,
		RedirectURL:       req.RedirectURL,
		ClientReferenceID: req.ClientReferenceID,
		Status:            "pending",
	}
	s.order = append(s.order, id)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"paymentPageId":  id,
		"paymentPageUrl": s.URL + "/pay/" + id,
	}})
}

func (s *Server) getTransaction(c *gin.Context) {
	s.mu.Lock()
	fail := s.failPolls
	p, ok := s.pages[c.Param("id")]
	var page Page
	if ok {
		page = *p
	}
	s.mu.Unlock()

	if fail {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": transactionJSON(page)})
}

func (s *Server) currentEntitlements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"entitlements": s.purchased(nil)}})
}

func (s *Server) entitlements(c *gin.Context) {
	var filter map[string]bool
	if ids := c.Query("productIds"); ids != "" {
		filter = make(map[string]bool)
		for _, id := range strings.Split(ids, ",") {
			filter[id] = true
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"entitlements": s.purchased(filter)}})
}

func (s *Server) listProducts(c *gin.Context) {
	s.mu.Lock()
	products := s.products
	s.mu.Unlock()
	if products == nil {
		products = []map[string]interface{}{}
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"products": products}})
}

func (s *Server) purchased(filter map[string]bool) []gin.H {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for _, id := range s.order {
		p := s.pages[id]
		if p.Status != "purchased" {
			continue
		}
		if filter != nil && !filter[p.ProductID] {
			continue
		}
		out = append(out, gin.H{
			"paymentPageId": p.ID,
			"productId":     p.ProductID,
			"productType":   p.ProductType,
			"purchaseDate":  p.PurchaseDate.Format(time.RFC3339),
			"quantity":      1,
			"status":        p.Status,
		})
	}
	return out
}

func transactionJSON(p Page) gin.H {
	tx := gin.H{
		"id":          p.ID,
		"productId":   p.ProductID,
		"productType": p.ProductType,
		"quantity":    1,
		"status":      p.Status,
	}
	if !p.PurchaseDate.IsZero() {
		tx["purchaseDate"] = p.PurchaseDate.Format(time.RFC3339)
	}
	return tx
}
