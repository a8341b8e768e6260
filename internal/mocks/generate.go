// Package mocks holds gomock doubles of the external ports.
package mocks

//go:generate mockgen -destination=payment_verifier_mock.go -package=mocks github.com/cuongbtq/agenthire/internal/lifecycle PaymentVerifier
//go:generate mockgen -destination=task_processor_mock.go -package=mocks github.com/cuongbtq/agenthire/internal/dispatch TaskProcessor
//go:generate mockgen -destination=signature_verifier_mock.go -package=mocks github.com/cuongbtq/agenthire/internal/auth SignatureVerifier
