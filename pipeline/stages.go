package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/c360studio/semtrip/advise"
	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/normalize"
	"github.com/c360studio/semtrip/prompts"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
	"golang.org/x/sync/errgroup"
)

// interrupted wraps the context error, marking deadline expiry with
// ErrRunDeadline.
func interrupted(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRunDeadline, err)
	}
	return err
}

func preferences(req trip.PlanRequest, snap *trip.WeatherSnapshot) prompts.Preferences {
	p := prompts.Preferences{
		Styles:    req.Styles,
		Interests: req.Interests,
		Budget:    req.Tier.Label(),
		PartySize: req.PartySize,
		Notes:     req.Notes,
	}
	if snap != nil && snap.Analysis.Summary != "" {
		p.Weather = snap.Analysis.Summary
		if snap.Analysis.Pattern != "" {
			p.Weather += "，以" + snap.Analysis.Pattern + "为主"
		}
	}
	return p
}

func (o *Orchestrator) complete(ctx context.Context, capability model.Capability, system, user string) (string, error) {
	resp, err := o.deps.LLM.Complete(ctx, llm.Request{
		Capability: capability,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Cacheable: true,
	})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%s: empty answer from %s", capability, resp.Model)
	}
	return content, nil
}

// analyze gathers destination facts, the optional guide, weather, the
// destination analysis and travel tips.
func (o *Orchestrator) analyze(ctx context.Context, s *trip.PlanState, _ ProgressFunc) error {
	req := s.Request
	data := o.deps.Seeds.Data()

	facts, ok := data.Destination(s.Destination)
	if !ok {
		facts = seed.GenericDestination(s.Destination)
		s.Note(trip.StageAnalyzing, "seed", "no fact sheet, using generic destination")
	}
	s.Info = trip.DestinationInfo{
		Name:        s.Destination,
		Attractions: facts.Attractions,
		Cuisine:     facts.Cuisine,
		Airport:     facts.Airport,
		Transport:   facts.Transport,
		Climate:     facts.Climate,
		Coordinate:  destinationCoordinate(data, s.Destination),
	}

	var errs []error
	if req.GuideURL != "" {
		if o.deps.Guides == nil {
			errs = append(errs, errors.New("guide loading is disabled"))
		} else if g, err := o.deps.Guides.Load(ctx, req.GuideURL); err != nil {
			errs = append(errs, fmt.Errorf("load guide: %w", err))
		} else {
			s.Info.GuideTitle = g.Title
			s.Info.GuideExcerpt = g.Excerpt
		}
	}

	if o.deps.Weather != nil {
		s.Weather = o.deps.Weather.ForTrip(ctx, s.Destination, req.StartDate, s.Days)
	}
	if s.Weather == nil {
		s.Weather = fallbackWeather(req.StartDate, s.Days)
	}
	if s.Weather.Fallback {
		s.Note(trip.StageAnalyzing, "weather", "fallback forecast")
	}

	prefs := preferences(req, s.Weather)
	analysis, err := o.complete(ctx, model.CapabilityAnalysis,
		prompts.AnalysisSystemPrompt(),
		prompts.AnalysisUserPrompt(s.Destination, prefs, s.Info.GuideExcerpt))
	if err != nil {
		errs = append(errs, fmt.Errorf("destination analysis: %w", err))
		analysis = prompts.FallbackAnalysis(s.Destination)
	}
	s.Info.Analysis = analysis

	answer, err := o.complete(ctx, model.CapabilityTips,
		prompts.TipsSystemPrompt(),
		prompts.TipsUserPrompt(s.Destination, prefs))
	if err != nil {
		errs = append(errs, fmt.Errorf("travel tips: %w", err))
	}
	s.CulturalTips = prompts.ParseTips(answer)
	if len(s.CulturalTips) == 0 {
		if err == nil {
			s.Note(trip.StageAnalyzing, "tips", "answer had no bullet lines")
		}
		s.CulturalTips = fallbackTips(s.Destination, data)
	}

	return errors.Join(errs...)
}

func destinationCoordinate(data *seed.Data, destination string) *trip.Coordinate {
	if c, ok := data.CityFor(destination); ok {
		coord := c.Coordinate()
		return &coord
	}
	if coord, ok := data.InternationalCoordinate(destination); ok {
		return &coord
	}
	return nil
}

func fallbackTips(destination string, data *seed.Data) []string {
	tips := prompts.FallbackTips(destination)
	for _, t := range data.CulturalTips {
		if len(tips) == prompts.MaxTips {
			break
		}
		tips = append(tips, t)
	}
	return tips
}

func fallbackWeather(start trip.Date, days int) *trip.WeatherSnapshot {
	forecast := weather.FallbackForecast(start, min(days, 5))
	return &trip.WeatherSnapshot{
		Current:         weather.FallbackCurrent(),
		Forecast:        forecast,
		Analysis:        weather.Analyze(forecast),
		Recommendations: weather.Recommendations(forecast),
		Fallback:        true,
	}
}

// plan generates every day. With one worker days run in order and each
// prompt lists the places of earlier days; with more workers order is kept
// by writing each day into its own index.
func (o *Orchestrator) plan(ctx context.Context, s *trip.PlanState, report ProgressFunc) error {
	total := s.Days
	var (
		done atomic.Int32
		mu   sync.Mutex
		errs []error
	)
	planOne := func(ctx context.Context, day int, avoid []string) trip.DayPlan {
		d, err := o.planDay(ctx, s, day, avoid)
		s.SetDay(d)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		n := int(done.Add(1))
		report(Progress{
			Stage:   trip.StagePlanning,
			Percent: trip.StageAnalyzing.Percent() + (trip.StagePlanning.Percent()-trip.StageAnalyzing.Percent())*n/total,
			Message: fmt.Sprintf("第%d天行程已生成", day),
			Day:     day,
		})
		return d
	}

	if o.cfg.DayConcurrency <= 1 {
		var avoid []string
		for day := 1; day <= total; day++ {
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("planned %d of %d days: %w", day-1, total, interrupted(ctx)))
				break
			}
			d := planOne(ctx, day, avoid)
			avoid = append(avoid, sightseeing(d)...)
		}
		return errors.Join(errs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.DayConcurrency)
	for day := 1; day <= total; day++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			planOne(gctx, day, nil)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("planned %d of %d days: %w", done.Load(), total, interrupted(ctx)))
	}
	return errors.Join(errs...)
}

// sightseeing lists the non-meal places of a day.
func sightseeing(d trip.DayPlan) []string {
	var out []string
	for _, a := range d.Activities {
		if !a.Slot.IsMeal() && a.Location.Name != "" {
			out = append(out, a.Location.Name)
		}
	}
	return out
}

// planDay asks for one day, normalizes the answer, resolves locations and
// applies weather adjustments. On failure it returns the template day
// together with the error.
func (o *Orchestrator) planDay(ctx context.Context, s *trip.PlanState, day int, avoid []string) (trip.DayPlan, error) {
	req := s.Request
	date := req.StartDate.AddDays(day - 1)
	note := weather.NoteForDay(s.Weather, date, day)

	prefs := preferences(req, s.Weather)
	if note != "" {
		prefs.Weather = note
	}
	answer, err := o.complete(ctx, model.CapabilityItinerary,
		prompts.ItinerarySystemPrompt(),
		prompts.ItineraryUserPrompt(prompts.ItineraryInput{
			Destination: s.Destination,
			Day:         day,
			TotalDays:   s.Days,
			Budget:      req.Tier.Label(),
			Prefs:       prefs,
			Avoid:       avoid,
		}))

	var (
		acts      []trip.Activity
		transport = "公共交通/步行"
		method    = string(normalize.MethodTemplate)
		dayErr    error
	)
	if err != nil {
		dayErr = fmt.Errorf("day %d itinerary: %w", day, err)
		acts = templateActivities(req, day, s.Days)
	} else {
		sched := normalize.Normalize(answer, day)
		acts = scheduleActivities(sched)
		method = string(sched.Method)
		if sched.Transportation != "" {
			transport = sched.Transportation
		}
	}
	s.Note(trip.StagePlanning, method, fmt.Sprintf("day %d", day))
	o.metrics.day(method)

	o.locate(ctx, acts, s.Destination)
	adjustForWeather(acts, note)

	d := trip.DayPlan{
		Day:            day,
		Date:           date,
		Theme:          dayTheme(req, day, s.Days),
		Activities:     acts,
		Notes:          dayNotes(req, day) + walkingNote(acts),
		Transportation: transport,
		WeatherNote:    note,
	}
	d.Recalculate()
	return d, dayErr
}

// scheduleActivities converts a normalized schedule into activities at the
// fixed slot times.
func scheduleActivities(sched normalize.DaySchedule) []trip.Activity {
	acts := make([]trip.Activity, 0, len(trip.Slots()))
	for _, slot := range trip.Slots() {
		d := sched.Slot(slot)
		name := d.Activity
		if name == "" {
			name = d.Name
		}
		place := d.Location
		if place == "" {
			place = d.Name
		}
		desc := d.Description
		if d.Specialties != "" {
			desc = joinSentence(desc, "特色："+d.Specialties)
		}
		if d.OpenTime != "" {
			desc = joinSentence(desc, "开放时间："+d.OpenTime)
		}
		acts = append(acts, trip.Activity{
			Slot:        slot,
			Time:        slot.ClockTime(),
			Name:        name,
			Location:    trip.Location{Name: place, Address: d.Address},
			Cost:        trip.SanitizeCost(d.Cost),
			Duration:    d.Duration,
			Description: desc,
			Tips:        d.Tips,
		})
	}
	return acts
}

func joinSentence(a, b string) string {
	if a == "" {
		return b
	}
	return a + "；" + b
}

// locate resolves every activity location once per distinct name. An
// address supplied with the schedule is kept when the resolver only found
// a fallback.
func (o *Orchestrator) locate(ctx context.Context, acts []trip.Activity, destination string) {
	seen := make(map[string]trip.ResolvedLocation)
	for i := range acts {
		name := acts[i].Location.Name
		r, ok := seen[name]
		if !ok {
			r = o.deps.Locator.Resolve(ctx, name, destination)
			seen[name] = r
		}
		given := acts[i].Location.Address
		acts[i].Location = r.Location()
		if given != "" && (r.Source == trip.SourceCityTable || r.Source == trip.SourceDefault) {
			acts[i].Location.Address = given
		}
	}
}

// walkingNote reports the straight-line distance between consecutive
// activities.
func walkingNote(acts []trip.Activity) string {
	points := make([]trip.Coordinate, 0, len(acts))
	for _, a := range acts {
		if a.Location.Coordinate != nil {
			points = append(points, *a.Location.Coordinate)
		}
	}
	if len(points) < 2 {
		return ""
	}
	return fmt.Sprintf("全天景点间直线距离约%s。", geo.FormatDistance(geo.RouteLength(points)))
}

// templateDay builds a placeholder day without calling providers. Every
// location gets the destination's coordinate.
func (o *Orchestrator) templateDay(s *trip.PlanState, day int) trip.DayPlan {
	req := s.Request
	date := req.StartDate.AddDays(day - 1)
	note := weather.NoteForDay(s.Weather, date, day)

	center := seed.DefaultCoordinate
	if s.Info.Coordinate != nil {
		center = *s.Info.Coordinate
	} else if c := destinationCoordinate(o.deps.Seeds.Data(), s.Destination); c != nil {
		center = *c
	}

	acts := templateActivities(req, day, s.Days)
	for i := range acts {
		c := center
		acts[i].Location.Coordinate = &c
	}
	adjustForWeather(acts, note)

	d := trip.DayPlan{
		Day:            day,
		Date:           date,
		Theme:          dayTheme(req, day, s.Days),
		Activities:     acts,
		Notes:          dayNotes(req, day),
		Transportation: "公共交通/步行",
		WeatherNote:    note,
	}
	d.Recalculate()
	return d
}

func (o *Orchestrator) optimizeBudget(_ context.Context, s *trip.PlanState, _ ProgressFunc) error {
	summary := o.deps.Budget.Aggregate(s.Itinerary, s.Request.Tier, s.Request.PartySize)
	s.Budget = &summary
	return nil
}

func (o *Orchestrator) personalize(_ context.Context, s *trip.PlanState, _ ProgressFunc) error {
	s.Recommend = advise.Recommend(s.Request, s.Info, s.Weather)
	return nil
}

func (o *Orchestrator) collaborate(_ context.Context, s *trip.PlanState, _ ProgressFunc) error {
	tips, plan := advise.Collaborate(s.Request.PartySize)
	s.Collaboration = plan
	s.Recommend = append(s.Recommend, tips...)
	return nil
}
