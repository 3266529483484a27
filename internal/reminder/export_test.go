package reminder

func (s *Scheduler) Fire(r Reminder) {
	s.fire(r)
}

func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}
