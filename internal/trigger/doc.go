// Package trigger computes when a queued job is next due.
//
// A Trigger is an immutable value; Next returns a new value with advanced
// state, or false when the schedule is exhausted. Three variants exist:
//
//   - OneShot fires once at now+delay.
//   - Repeating fires at a fixed rate anchored to the previous trigger time,
//     bounded by an optional repeat count and end time.
//   - Cron fires on the ticks of a cron expression with the same bounds.
//
// Repeating and Cron schedules are fixed-rate: Next advances from the previous
// trigger time, not from the moment the job actually ran. A consumer that
// processes an occurrence late does not shift later occurrences, and missed
// occurrences are neither caught up nor skipped ahead; an occurrence already
// in the past is simply due immediately.
package trigger
