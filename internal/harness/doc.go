// Package harness runs logging scenarios end to end.
//
// A scenario configures a logger, registers handlers, replays a list of
// steps against it and asserts on what the handlers received. Every run
// uses a fresh temporary directory and a deterministic record clock, so
// traces are reproducible and can be compared against golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: rotation_by_size
//	description: "The file sink archives the log once it passes 1 kilobyte"
//	settings:
//	  pool_size: 0
//	handlers:
//	  - path: files.main
//	    type: file
//	    file: app.log
//	    rotation: "1 kilobyte >> archive/"
//	  - path: mem
//	    type: memory
//	steps:
//	  - log: { message: "hello", level: INFO, fields: { user: "ann" } }
//	  - call: { function: add, args: [2, 3] }
//	  - set: { max_queue_size: 10 }
//	    expect_error: BEFORE_START
//	assertions:
//	  - type: record_count
//	    handler: mem
//	    count: 2
//	  - type: archive_count
//	    handler: files.main
//	    count: 1
//
// # Handler Types
//
//   - memory: keeps records in memory
//   - file: writes formatted lines, with optional rotation and locks
//   - store: persists records to SQLite
//
// # Assertion Types
//
//   - record_count: number of records a memory or store handler received
//   - record_fields: subset match on one record of a memory handler
//   - record_order: messages of a memory handler, in order
//   - line_count: lines in the live file of a file handler
//   - archive_count: archives produced by a file handler
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/manual.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
