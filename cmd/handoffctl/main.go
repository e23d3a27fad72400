// Command handoffctl is the operator CLI: database setup, admin accounts and
// a terminal view that follows and answers one conversation live.
package main

func main() {
	Execute()
}
