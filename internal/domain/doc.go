// Package domain contains the core business entities, value objects, and
// domain logic of the application: image jobs and the rules governing their
// state transitions, generated stock metadata, and user settings. It is
// independent of any specific infrastructure or delivery mechanism.
package domain
