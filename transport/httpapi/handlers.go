package httpapi

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pensionportal/recovery"
)

const initiateMessage = "If the identifier belongs to an account, choose how to receive a verification code."

type initiateRequest struct {
	SubjectIdentifier string `json:"subjectIdentifier" validate:"required,max=64"`
}

type initiateResponse struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	SessionToken     string   `json:"sessionToken,omitempty"`
	AvailableMethods []string `json:"availableMethods,omitempty"`
}

type sendCodeRequest struct {
	SessionToken string `json:"sessionToken" validate:"required,max=128"`
	Method       string `json:"method" validate:"required,oneof=email sms"`
}

type sendCodeResponse struct {
	Success          bool `json:"success"`
	ExpiresInMinutes int  `json:"expiresInMinutes"`
}

type verifyCodeRequest struct {
	SessionToken string `json:"sessionToken" validate:"required,max=128"`
	Code         string `json:"code" validate:"required,max=16"`
}

type resetRequest struct {
	SessionToken string `json:"sessionToken" validate:"required,max=128"`
	NewPassword  string `json:"newPassword" validate:"required,max=1024"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (a *api) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.engine.Initiate(r.Context(), req.SubjectIdentifier)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := initiateResponse{
		Success:      true,
		Message:      initiateMessage,
		SessionToken: res.Token,
	}
	for _, m := range res.AvailableMethods {
		out.AvailableMethods = append(out.AvailableMethods, string(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) sendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.engine.SendCode(r.Context(), req.SessionToken, recovery.ContactMethod(req.Method))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendCodeResponse{
		Success:          true,
		ExpiresInMinutes: res.ExpiresInMinutes(),
	})
}

func (a *api) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.engine.VerifyCode(r.Context(), req.SessionToken, req.Code); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *api) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.engine.CompletePasswordReset(r.Context(), req.SessionToken, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, a.log, chimiddleware.GetReqID(r.Context()), err)
}
