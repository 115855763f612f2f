// Package harness runs scenario tests against visual-script programs.
//
// A scenario loads one program file, attaches it to a recording owner,
// fires events and calls script functions, then checks the recorded trace
// and the final variable values.
//
// # Scenario Format
//
//	name: emit_on_ready
//	description: "ready emits hit with the constant"
//	program: player.vst          # relative to the scenario file
//	owner: Player                # optional, default "Owner"
//	max_steps: 1000              # optional step budget per chain
//	variables: { score: 3 }      # optional initial values
//	methods: { get_speed: 4.5 }  # optional owner method results
//	steps:
//	  - trigger: ready
//	    args: [1]
//	  - call: double
//	    args: [4]
//	    expect:
//	      result: 8
//	  - trigger: missing
//	    expect:
//	      error: NO_ENTRY
//	assertions:
//	  - type: signal_emitted
//	    signal: hit
//	    args: [3]
//	  - type: signal_order
//	    signals: [hit, done]
//	  - type: signal_count
//	    signal: hit
//	    count: 1
//	  - type: variable
//	    name: score
//	    value: 7
//	  - type: printed
//	    text: "hello"
//
// # Deterministic Testing
//
// Chain ids come from testutil.FixedUIDGenerator and trace events are
// numbered by testutil.DeterministicClock, so the same scenario always
// produces a byte-identical trace for golden comparison.
package harness
