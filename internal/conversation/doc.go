// Package conversation runs time-boxed spoken sessions with an authorized user.
//
// A session greets the user, then alternates listening and routing until the
// deadline passes, the user says nothing, listening fails or the context is
// cancelled. Each utterance is classified by an ordered rule table and routed
// to add-schedule, show-schedule or chat handling.
package conversation
