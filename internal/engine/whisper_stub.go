//go:build !whisper

package engine

import (
	"gpnscribe/internal/config"
	"gpnscribe/internal/errs"

	"github.com/sirupsen/logrus"
)

func openWhisper(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	return nil, errs.Config("whisper backend not built in; rebuild with '-tags whisper' or set engine.backend to exec or http")
}
