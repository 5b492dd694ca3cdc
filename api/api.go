package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inklet/newsletter-backend/models"
	"github.com/inklet/newsletter-backend/subscription"
)

////////////////////////////////
//  *****   REST API   *****  //
////////////////////////////////

// SubscriptionService wraps the subscription workflow the API exposes.
type SubscriptionService interface {
	Subscribe(ctx context.Context, name string, email string) error
	Confirm(ctx context.Context, token string) error
	Broadcast(ctx context.Context, issue models.Newsletter) (subscription.BroadcastReport, error)
}

// API is the HTTP API that this service provides.
// All requests respond with a response JSON, with fields:
// {
//     status_code // HTTP status code of request
//     message // Any error message accompanying the status_code. If 200, empty.
//     response // Response data (as JSON) from this request.
// }
type API struct {
	Service SubscriptionService
}

type response struct {
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Response   interface{} `json:"response"`
}

type apiHandler func(r *http.Request) response

func (api *API) wrapper(handler apiHandler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		response := handler(r)
		if response.StatusCode == http.StatusInternalServerError {
			packet := raven.NewPacket(response.Message, raven.NewHttp(r))
			raven.Capture(packet, nil)
		}
		writeJSON(w, response)
	}
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

// RegisterHandlers binds API functions to the given http server,
// and returns the resulting handler.
func (api *API) RegisterHandlers(mux *http.ServeMux) http.Handler {
	mux.Handle("/subscriptions",
		throttleHandler(time.Minute, 60, http.HandlerFunc(api.wrapper(api.subscribe))))
	mux.HandleFunc("/subscriptions/confirm", api.wrapper(api.confirm))
	mux.HandleFunc("/newsletters", api.wrapper(api.newsletter))
	mux.HandleFunc("/ping", pingHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return middleware(mux)
}

// subscribe is the handler for /subscriptions.
//   POST /subscriptions
//        name: Display name of the new subscriber.
//        email: Address the confirmation link is sent to.
func (api *API) subscribe(r *http.Request) response {
	if r.Method != http.MethodPost {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/subscriptions only accepts POST requests"}
	}
	name, err := getParam("name", r)
	if err != nil {
		return badRequest(err.Error())
	}
	email, err := getParam("email", r)
	if err != nil {
		return badRequest(err.Error())
	}
	if err := api.Service.Subscribe(r.Context(), name, email); err != nil {
		return errorResponse(err)
	}
	return response{
		StatusCode: http.StatusOK,
		Response:   fmt.Sprintf("Thank you for subscribing! Please check %s to confirm your subscription.", email),
	}
}

// confirm is the handler for /subscriptions/confirm.
//   GET /subscriptions/confirm?subscription_token=<token>
//        subscription_token: Token from the confirmation email.
func (api *API) confirm(r *http.Request) response {
	if r.Method != http.MethodGet {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/subscriptions/confirm only accepts GET requests"}
	}
	token := r.URL.Query().Get("subscription_token")
	if token == "" {
		return badRequest("query parameter subscription_token not specified")
	}
	if err := api.Service.Confirm(r.Context(), token); err != nil {
		return errorResponse(err)
	}
	return response{
		StatusCode: http.StatusOK,
		Response:   "Your subscription is confirmed. Welcome aboard!",
	}
}

// newsletter is the handler for /newsletters.
//   POST /newsletters
//        JSON body: {"title": ..., "content": {"text": ..., "html": ...}}
//        Broadcasts the issue to every confirmed subscriber.
func (api *API) newsletter(r *http.Request) response {
	if r.Method != http.MethodPost {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/newsletters only accepts POST requests"}
	}
	var issue models.Newsletter
	if err := json.NewDecoder(r.Body).Decode(&issue); err != nil {
		return badRequest("could not parse newsletter body: %v", err)
	}
	report, err := api.Service.Broadcast(r.Context(), issue)
	if err != nil {
		return errorResponse(err)
	}
	return response{
		StatusCode: http.StatusOK,
		Response: map[string]int{
			"attempted": report.Attempted,
			"delivered": report.Delivered,
			"failed":    len(report.Failures),
		},
	}
}

// errorResponse maps workflow errors onto status codes. Infrastructure
// detail stays out of the body; the workflow has already logged it.
func errorResponse(err error) response {
	switch {
	case errors.Is(err, subscription.ErrInvalidInput):
		return badRequest(err.Error())
	case errors.Is(err, subscription.ErrUnknownToken):
		return response{StatusCode: http.StatusUnauthorized,
			Message: "there is no subscriber associated with the provided token"}
	case errors.Is(err, subscription.ErrNotificationFailed):
		return serverError("unable to send confirmation email")
	default:
		return serverError("internal error")
	}
}

// Retrieves `param` from the request's form data.
// If missing, then returns an error.
func getParam(param string, r *http.Request) (string, error) {
	value := r.FormValue(param)
	if value == "" {
		return "", fmt.Errorf("form parameter %s not specified", param)
	}
	return strings.TrimSpace(value), nil
}

// Writes the response as a JSON object to http.ResponseWriter `w`. If an
// error occurs, writes `http.StatusInternalServerError` to `w`.
func writeJSON(w http.ResponseWriter, apiResponse response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apiResponse.StatusCode)
	b, err := json.MarshalIndent(apiResponse, "", "  ")
	if err != nil {
		msg := fmt.Sprintf("Internal error: could not format JSON. (%s)\n", err)
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}

func badRequest(format string, a ...interface{}) response {
	return response{
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf(format, a...),
	}
}

func serverError(format string, a ...interface{}) response {
	return response{
		StatusCode: http.StatusInternalServerError,
		Message:    fmt.Sprintf(format, a...),
	}
}
