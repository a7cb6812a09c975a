// Package task runs image jobs against the metadata generator.
//
// A Runner drives one job through dispatch and its terminal write. A
// WorkerPool drives a batch of jobs through Runners, admitting at most a fixed
// number at a time in submission order. Both hold only job ids; every read
// and write of a job goes through the job store.
package task
