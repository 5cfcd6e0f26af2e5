// Package notify delivers verification codes for the recovery engine.
//
// SMTPMailer sends email, SMSGateway posts to an HTTP text-message gateway,
// and LogNotifier writes deliveries to a zerolog logger for local
// development. Router picks one of them by contact method.
package notify
