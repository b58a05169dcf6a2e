// Package rotation parses rotation policies and moves full log files aside.
//
// A policy has the shape
//
//	<rule>[, <rule>...] [>> <destination>]
//
// Rules are separated by commas or semicolons. Each rule is tokenized and
// offered to the registered rule classes in order; the first class whose
// Match accepts the tokens builds the rule. The only class registered by
// default is max-size:
//
//	3 kilobytes >> archive/
//	500 mb; 1.5 gb >> /var/log/old
//
// A Rotator checks the rules against the current file state and, when one
// fires, moves the file to <destination>/<timestamp>_<pid>.logs.
package rotation
