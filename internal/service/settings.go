package service

import (
	"context"

	"pos-service/internal/models"
)

// StaticSettings serves fixed business settings, typically loaded from config
type StaticSettings models.BusinessSettings

// Settings implements SettingsProvider
func (s StaticSettings) Settings(context.Context) (models.BusinessSettings, error) {
	return models.BusinessSettings(s), nil
}
