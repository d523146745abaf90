package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	payo "github.com/payoapp/payo/pkg"
	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/payoapp/payo/pkg/conductor"
)

// WebAPI implements conductor.Service
type WebAPI struct {
	api    payo.API
	config payo.Config
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config payo.Config, api payo.API) (WebAPI, error) {
	return WebAPI{api: api, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		mux := t.createRouter()

		srv := &http.Server{Addr: t.config.WebAPI.Bind + ":" + t.config.WebAPI.Port, Handler: mux}
		fmt.Printf("\nPayment API listening on %s:%s\n", t.config.WebAPI.Bind, t.config.WebAPI.Port)
		go func() {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()

		started <- true
		ctx := <-stop
		srv.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouter() *httprouter.Router {
	mux := httprouter.New()

	// POST { amount_fiat, method, description } /invoices -> { invoice }
	mux.POST("/invoices", t.createInvoice)

	// GET /invoices/:invoiceID -> { invoice }
	mux.GET("/invoices/:invoiceID", t.getInvoice)

	// GET /invoices ? status & method & limit & offset -> [ {...}, .. ]
	mux.GET("/invoices", t.listInvoices)

	// GET /invoices/:invoiceID/qr.png -> payment URI QR code
	mux.GET("/invoices/:invoiceID/qr.png", t.getInvoiceQR)

	// GET /exchange-rates -> { "BTC": "...", "USDC": "..." }
	mux.GET("/exchange-rates", t.getExchangeRates)

	mux.GET("/health", t.health)

	return mux
}

// PublicInvoice is the wire shape of an invoice, with the derived
// payment URL and QR payload attached.
type PublicInvoice struct {
	payo.Invoice
	PaymentURL string `json:"payment_url"`
	QRData     string `json:"qr_data"`
}

func (t WebAPI) toPublic(inv payo.Invoice) PublicInvoice {
	return PublicInvoice{
		Invoice:    inv,
		PaymentURL: t.api.PaymentURL(inv),
		QRData:     inv.QRData(),
	}
}

// createInvoice creates a new invoice from the fiat amount and payment
// method in the body, returning it with the pay-to identifier.
func (t WebAPI) createInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o payo.InvoiceCreateRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	invoice, err := t.api.CreateInvoice(o)
	if err != nil {
		sendError(w, "CreateInvoice", err)
		return
	}
	sendResponse(w, t.toPublic(invoice))
}

// getInvoice returns the current state of an invoice.
func (t WebAPI) getInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID in URL")
		return
	}
	invoice, err := t.api.GetInvoice(id)
	if err != nil {
		sendError(w, "GetInvoice", err)
		return
	}
	sendResponse(w, t.toPublic(invoice))
}

type ListInvoicesResponse struct {
	Items []PublicInvoice `json:"items"`
}

// listInvoices returns invoices, optionally filtered by status and method.
func (t WebAPI) listInvoices(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	qs := r.URL.Query()
	limit := 50
	offset := 0
	var err error
	if v := qs.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			sendBadRequest(w, "invalid limit in URL")
			return
		}
	}
	if v := qs.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			sendBadRequest(w, "invalid offset in URL")
			return
		}
	}
	items, err := t.api.ListInvoices(
		payo.InvoiceStatus(qs.Get("status")),
		payo.PaymentMethod(qs.Get("method")),
		limit, offset)
	if err != nil {
		sendError(w, "ListInvoices", err)
		return
	}
	resp := ListInvoicesResponse{Items: []PublicInvoice{}}
	for _, inv := range items {
		resp.Items = append(resp.Items, t.toPublic(inv))
	}
	sendResponse(w, resp)
}

func (t WebAPI) getInvoiceQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID in URL")
		return
	}
	invoice, err := t.api.GetInvoice(id)
	if err != nil {
		sendErrorResponse(w, 404, payo.NotFound, "no such invoice")
		return
	}
	qr, err := paymentQR(invoice.QRData(), 512)
	if err != nil {
		sendError(w, "PaymentQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// The QR payload never changes for a given invoice, and most
	// invoices settle well within their 15 minute expiry.
	w.Header().Set("Cache-Control", "max-age=900, immutable")
	w.Write(qr)
}

func (t WebAPI) getExchangeRates(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rates, err := t.api.ExchangeRates()
	if err != nil {
		sendError(w, "ExchangeRates", err)
		return
	}
	sendResponse(w, rates)
}

func (t WebAPI) health(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	sendResponse(w, map[string]string{"status": "healthy"})
}

// paymentQR renders a payment URI as a PNG. Medium error correction
// keeps even long BOLT11 payment requests scannable.
func paymentQR(uri string, size int) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding payment QR: %v", err)
	}
	return png, nil
}
