// Package harness runs dispatch scenarios described in YAML.
//
// A scenario seeds a fresh data directory, dispatches a list of events and
// checks the final value of each domain:
//
//	name: add_source_then_reading
//	description: "one source, one reading"
//	catalog: catalogs/notes.cue   # optional, relative to the scenario file
//	seed:
//	  readings: '[{"reading":"boot"}]'
//	expect_open_error: ""         # set to a dispatch error code to expect Open to fail
//	steps:
//	  - event: add_source
//	    payload: '{"name":"a"}'
//	  - event: add_source
//	    payload: 'not json'
//	    expect_error: PARSE_ERROR
//	expect:
//	  readings: [{reading: boot}]
//
// Every run uses a fresh temp directory, sequential dispatch ids
// (scn-0001, scn-0002, ...) and a clock starting at zero, so the same
// scenario always produces byte-identical results. After the last step the
// harness also checks that every domain file on disk matches memory.
//
// Golden comparison is available through RunWithGolden:
//
//	go test ./internal/harness -update
package harness
