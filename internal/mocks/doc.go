// Package mocks provides centralized mock implementations for testing.
//
// Each mock records its calls and either returns fixed values or delegates to
// a function field, so tests can script failures without defining inline
// fakes:
//
//	gen := mocks.NewMockGeneratorWithError(generation.ErrContentBlocked)
//	svc, _ := service.NewBatchService(jobs, previews, settings, gen, nil, cfg, logger)
package mocks
