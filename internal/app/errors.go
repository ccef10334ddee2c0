package service

import "errors"

// Sentinel errors returned by sessions and the service.
var (
	ErrClosed        = errors.New("session closed")
	ErrSuperseded    = errors.New("round superseded by a newer submission")
	ErrUnknownRound  = errors.New("unknown round")
	ErrNotStarted    = errors.New("service not started")
	ErrUnknownDomain = errors.New("unknown domain")
)
