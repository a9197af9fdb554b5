package logger

import (
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

// Field names shared by every file and document event, so Axiom queries can
// follow one file across the store and the service.
const (
    FieldFileID    = "file_id"
    FieldOperation = "operation"
    FieldPages     = "pages"
)

// File starts an event about one tracked file. op names what happened to it
// (store, delete, expire, parse, output).
func File(level zerolog.Level, op, id string) *zerolog.Event {
    return log.WithLevel(level).Str(FieldOperation, op).Str(FieldFileID, id)
}

// Document is File for a parsed or generated document with a known page count.
func Document(level zerolog.Level, op, id string, pages int) *zerolog.Event {
    return File(level, op, id).Int(FieldPages, pages)
}

// Operation starts an event for a finished service operation.
func Operation(level zerolog.Level, op string, took time.Duration) *zerolog.Event {
    return log.WithLevel(level).Str(FieldOperation, op).Dur("took", took)
}

// Lifecycle starts an event for a component starting or stopping.
func Lifecycle(component, state string) *zerolog.Event {
    return log.Info().Str("component", component).Str("state", state)
}
