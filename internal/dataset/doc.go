// Package dataset turns a race-feature CSV into left-padded expanding-window
// sequences for the win/lose classifier.
//
// Every column except "winner" is a numeric feature. Features are min-max
// scaled to [0, 1]; the sequence ending at row i is labeled with the winner
// value of row i+1, so an N-row table yields N-1 samples of length N-1.
package dataset
