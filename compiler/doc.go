/*

Process of flattening

Region IR Text ->
	parse ->
Region IR (ir) with for, if and parallel ops ->
	verify ->
	lower (innermost first, parallel nests into for loops first) ->
Flat Control Flow Graph (ir) of br and cond_br ->
	verify, flatness check ->
Region IR Text (format) or LLVM IR (llvm)

Any stage can be executed by interp.

*/
package compiler
