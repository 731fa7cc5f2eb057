package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"FlowBackend/internal/flow"
	"FlowBackend/internal/models"
	"FlowBackend/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidEmail     = errors.New("invalid or missing email")
	ErrNoPublicBaseURL  = errors.New("public base url not configured")
	ErrDownloadNotFound = errors.New("download token not found")
	ErrPaymentRequired  = errors.New("payment not confirmed")
	ErrProductMissing   = errors.New("product file missing")
)

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetByFlowToken(ctx context.Context, flowToken string) (*models.Order, error)
	MarkPaidIfUnpaid(ctx context.Context, flowToken, downloadToken string) (bool, error)
	GetByDownloadToken(ctx context.Context, downloadToken string) (*models.Order, error)
}

type Gateway interface {
	CreatePayment(ctx context.Context, p flow.CreatePaymentParams) (*flow.CreatePaymentResult, error)
	GetStatus(ctx context.Context, token string) (*flow.PaymentStatus, error)
}

// Notifier delivers the download link out-of-band. Enqueue must not block
// and must never fail the caller; delivery is best-effort.
type Notifier interface {
	Enqueue(to, subject, body string)
}

type CheckoutService struct {
	Store           OrderStore
	Gateway         Gateway
	Notifier        Notifier
	PublicBaseURL   string
	DownloadBaseURL string
	ProductFile     string
	ProductSubject  string
	ProductCurrency string
	ProductAmount   int64
}

type CheckoutResult struct {
	CheckoutURL string
	Token       string
}

func (s *CheckoutService) CreateCheckout(ctx context.Context, email string) (*CheckoutResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegexp.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if s.PublicBaseURL == "" {
		return nil, ErrNoPublicBaseURL
	}

	orderID := uuid.NewString()
	commerceOrder := uuid.NewString()

	optional, err := json.Marshal(map[string]string{"orderId": orderID})
	if err != nil {
		return nil, err
	}

	res, err := s.Gateway.CreatePayment(ctx, flow.CreatePaymentParams{
		CommerceOrder:   commerceOrder,
		Subject:         s.ProductSubject,
		Currency:        s.ProductCurrency,
		Amount:          s.ProductAmount,
		Email:           email,
		URLConfirmation: s.PublicBaseURL + "/flow/confirmation",
		URLReturn:       s.PublicBaseURL + "/flow/return",
		Optional:        string(optional),
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            orderID,
		Email:         email,
		CommerceOrder: commerceOrder,
		FlowToken:     res.Token,
		Status:        models.OrderCreated,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	return &CheckoutResult{
		CheckoutURL: res.URL + "?token=" + res.Token,
		Token:       res.Token,
	}, nil
}

type ConfirmationResult string

const (
	ConfirmMissingToken  ConfirmationResult = "missing_token"
	ConfirmOrderNotFound ConfirmationResult = "order_not_found"
	ConfirmProcessed     ConfirmationResult = "processed"
)

// ProcessConfirmation handles the gateway's server-to-server callback.
// The reported status is never trusted: the gateway is asked directly.
// Duplicate and concurrent deliveries for the same token are safe because
// the store's conditional update applies the paid transition at most once,
// and the notification is scheduled only by the call that applied it.
func (s *CheckoutService) ProcessConfirmation(ctx context.Context, token string) (ConfirmationResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ConfirmMissingToken, nil
	}

	status, err := s.Gateway.GetStatus(ctx, token)
	if err != nil {
		// Not applied; the gateway will redeliver the callback.
		return ConfirmProcessed, err
	}

	order, err := s.Store.GetByFlowToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ConfirmOrderNotFound, nil
		}
		return ConfirmProcessed, err
	}

	if status.Status != flow.StatusPaid {
		return ConfirmProcessed, nil
	}

	downloadToken := newDownloadToken()
	applied, err := s.Store.MarkPaidIfUnpaid(ctx, token, downloadToken)
	if err != nil {
		return ConfirmProcessed, err
	}
	if applied {
		link := s.DownloadBaseURL + "/download/" + downloadToken
		s.Notifier.Enqueue(order.Email, s.mailSubject(), mailBody(link))
	}
	return ConfirmProcessed, nil
}

type ReturnOutcome struct {
	OK      bool
	Message string
}

// ReturnStatus backs the browser return page. Display only: the
// authoritative record is written by the confirmation path and may lag.
func (s *CheckoutService) ReturnStatus(ctx context.Context, token string) (*ReturnOutcome, error) {
	status, err := s.Gateway.GetStatus(ctx, token)
	if err != nil {
		return nil, err
	}
	switch status.Status {
	case flow.StatusPaid:
		return &ReturnOutcome{OK: true, Message: "Pago confirmado. Revisa tu correo para el link de descarga."}, nil
	case flow.StatusPending:
		return &ReturnOutcome{OK: true, Message: "Pago pendiente. Si fue transferencia/cupón, puede tardar."}, nil
	default:
		return &ReturnOutcome{OK: false, Message: "Pago no completado (rechazado/anulado)."}, nil
	}
}

type Download struct {
	Path     string
	Filename string
}

func (s *CheckoutService) AuthorizeDownload(ctx context.Context, downloadToken string) (*Download, error) {
	order, err := s.Store.GetByDownloadToken(ctx, downloadToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDownloadNotFound
		}
		return nil, err
	}
	if order.Status != models.OrderPaid {
		return nil, ErrPaymentRequired
	}
	if _, err := os.Stat(s.ProductFile); err != nil {
		return nil, ErrProductMissing
	}
	return &Download{Path: s.ProductFile, Filename: filepath.Base(s.ProductFile)}, nil
}

func (s *CheckoutService) mailSubject() string {
	return "Tu " + s.ProductSubject + " — Link de descarga"
}

func mailBody(link string) string {
	return "¡Gracias por tu compra!\n\n" +
		"Aquí está tu link de descarga:\n" + link + "\n\n" +
		"Si tienes problemas, responde a este correo.\n" +
		"— Flujos Digitales"
}

func newDownloadToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
