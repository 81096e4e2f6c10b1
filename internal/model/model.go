package model

import (
	"github.com/LeonardoBeccarini/rootwater/internal/model/entities"
	"github.com/LeonardoBeccarini/rootwater/internal/model/messages"
)

// Aliases of the types shared by the services.

type (
	SoilMoistureData = messages.SoilMoistureData
	SapVelocityData  = messages.SapVelocityData
	RWUEstimateEvent = messages.RWUEstimateEvent
	SapFlowEvent     = messages.SapFlowEvent
	Field            = entities.Field
	Probe            = entities.Probe
	Tree             = entities.Tree
	Number           = messages.Number
	DayRecord        = messages.DayRecord
)

var (
	NewRWUEstimateEvent = messages.NewRWUEstimateEvent
	NewDayRecord        = messages.NewDayRecord
)
